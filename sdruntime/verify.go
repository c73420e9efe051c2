package sdruntime

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"strings"
)

// ChecksumSuffix names the sidecar file holding a model's digest, e.g.
// ghibli-diffusion-v1.safetensors.sha256. It holds the hex digest,
// optionally followed by the file name as written by sha256sum.
const ChecksumSuffix = ".sha256"

// VerifyModelChecksum validates a model file's SHA256 against its sidecar
// file. verified is false when there is no sidecar; that is not an error.
func VerifyModelChecksum(modelPath string) (verified bool, err error) {
	if _, err := os.Stat(modelPath); err != nil {
		if os.IsNotExist(err) {
			return false, fmt.Errorf("%w: %s", ErrModelNotFound, modelPath)
		}
		return false, fmt.Errorf("failed to access model file: %w", err)
	}

	expected, ok, err := expectedChecksum(modelPath)
	if err != nil {
		return false, err
	}
	if !ok {
		return false, nil
	}

	actual, err := CalculateChecksum(modelPath)
	if err != nil {
		return false, fmt.Errorf("failed to calculate checksum: %w", err)
	}
	if actual != expected {
		return false, fmt.Errorf("%w: expected %s, got %s", ErrModelCorrupted, expected, actual)
	}
	return true, nil
}

func expectedChecksum(modelPath string) (string, bool, error) {
	data, err := os.ReadFile(modelPath + ChecksumSuffix)
	switch {
	case err == nil:
		fields := strings.Fields(string(data))
		if len(fields) == 0 || len(fields[0]) != sha256.Size*2 {
			return "", false, fmt.Errorf("%w: malformed checksum file %s%s", ErrModelCorrupted, modelPath, ChecksumSuffix)
		}
		return strings.ToLower(fields[0]), true, nil
	case os.IsNotExist(err):
		return "", false, nil
	default:
		return "", false, fmt.Errorf("read checksum file: %w", err)
	}
}

// CalculateChecksum streams a file through SHA256 and returns the lowercase
// hex digest.
func CalculateChecksum(filePath string) (string, error) {
	file, err := os.Open(filePath)
	if err != nil {
		if os.IsNotExist(err) {
			return "", fmt.Errorf("%w: %s", ErrModelNotFound, filePath)
		}
		return "", fmt.Errorf("failed to open file: %w", err)
	}
	defer file.Close()

	hasher := sha256.New()
	if _, err := io.Copy(hasher, file); err != nil {
		return "", fmt.Errorf("failed to read file: %w", err)
	}
	return hex.EncodeToString(hasher.Sum(nil)), nil
}
