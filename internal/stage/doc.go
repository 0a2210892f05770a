// Package stage declares the narrow contracts the workflow manager consumes
// from external collaborators: video extraction, transcription/translation,
// speech routing and synthesis, audio assembly, video assembly, quality
// validation, and cost accounting.
//
// Implementations live under internal/services; tests supply stubs.
package stage
