package speech

import (
	"fmt"
	"os"
)

// writeTempArtifact persists audio outside the cache when the store is
// unavailable. The caller owns the file.
func writeTempArtifact(audio *Audio) (string, error) {
	f, err := os.CreateTemp("", "readaloud-*."+string(audio.Format))
	if err != nil {
		return "", err
	}
	if _, err := f.Write(audio.Data); err != nil {
		f.Close()
		os.Remove(f.Name())
		return "", err
	}
	if err := f.Close(); err != nil {
		os.Remove(f.Name())
		return "", err
	}
	return f.Name(), nil
}

// Extension returns the filename extension for the format.
func (f AudioFormat) Extension() string {
	return fmt.Sprintf(".%s", string(f))
}
