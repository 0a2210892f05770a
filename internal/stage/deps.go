package stage

import "errors"

// Validate reports the first missing collaborator. Quality and Cost are optional.
func (d Dependencies) Validate() error {
	switch {
	case d.Video == nil:
		return errors.New("video processor is required")
	case d.Transcribe == nil:
		return errors.New("transcriber is required")
	case d.Speech == nil:
		return errors.New("speech router is required")
	case d.Audio == nil:
		return errors.New("audio assembler is required")
	case d.Assembly == nil:
		return errors.New("video assembler is required")
	}
	return nil
}
