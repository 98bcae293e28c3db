// Package whisper runs offline speech-to-text through an in-process whisper.cpp
// engine.
//
// A Context owns one loaded model. Transcribe blocks until the engine finishes and
// returns every finalized segment; progress and segment handlers in Options observe
// the run while it is in flight. One Context serves one transcription at a time;
// run independent transcriptions concurrently on independent Contexts.
//
// The engine is linked only when building with -tags whispercpp. Without the tag
// Open fails with an *InitError wrapping ErrNativeUnavailable.
package whisper
