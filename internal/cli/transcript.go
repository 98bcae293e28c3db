package cli

import (
	"fmt"
	"strings"
)

// blankAudioToken is what whisper.cpp itself prints for silence.
const blankAudioToken = "[BLANK_AUDIO]"

func isBlankTranscript(transcript string) bool {
	trimmed := strings.TrimSpace(transcript)
	if trimmed == "" {
		return true
	}

	return strings.EqualFold(trimmed, blankAudioToken)
}

func noSpeechHint(path string) string {
	return fmt.Sprintf("No speech detected in %s. Check the recording level, or lower --silence-threshold-dbfs.", path)
}
