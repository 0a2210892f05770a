// Package remote implements the workflow's collaborator contracts over HTTP
// JSON services: transcription and translation (stage.Transcriber), speech
// synthesis providers behind a router (stage.SpeechRouter) and the quality
// gate (stage.QualityGate).
//
// Every client classifies failures for the recovery controller:
//
//	429                      quota (errors.Is services.ErrQuotaExceeded)
//	408, 5xx, network errors transient
//	507                      resource
//	anything else            unclassified
//
// Each service also answers GET /health, which backs HealthCheck.
package remote
