// Package paths resolves the per-user application data directory and the
// persistent browser profile kept inside it.
package paths

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
)

const (
	AppName   = "CampaignFlow"
	AppVendor = "YourCompany"

	profileSubdir = "browser_profile"
	logFileName   = "app.log"
)

// DataDir returns the per-user data directory for the application:
//
//	windows: %LOCALAPPDATA%\YourCompany\CampaignFlow
//	darwin:  ~/Library/Application Support/CampaignFlow
//	other:   $XDG_DATA_HOME/CampaignFlow (default ~/.local/share/CampaignFlow)
func DataDir() (string, error) {
	return dataDir(runtime.GOOS, os.Getenv, os.UserHomeDir)
}

func dataDir(goos string, getenv func(string) string, home func() (string, error)) (string, error) {
	switch goos {
	case "windows":
		base := getenv("LOCALAPPDATA")
		if base == "" {
			h, err := home()
			if err != nil {
				return "", fmt.Errorf("failed to get home directory: %w", err)
			}
			base = filepath.Join(h, "AppData", "Local")
		}
		return filepath.Join(base, AppVendor, AppName), nil
	case "darwin":
		h, err := home()
		if err != nil {
			return "", fmt.Errorf("failed to get home directory: %w", err)
		}
		return filepath.Join(h, "Library", "Application Support", AppName), nil
	default:
		base := getenv("XDG_DATA_HOME")
		if base == "" {
			h, err := home()
			if err != nil {
				return "", fmt.Errorf("failed to get home directory: %w", err)
			}
			base = filepath.Join(h, ".local", "share")
		}
		return filepath.Join(base, AppName), nil
	}
}

// ProfileDir returns the default browser profile directory.
func ProfileDir() (string, error) {
	base, err := DataDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(base, profileSubdir), nil
}

// LogFile returns the default log file path.
func LogFile() (string, error) {
	base, err := DataDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(base, logFileName), nil
}

// EnsureWritableDir creates dir if it is missing and verifies that files can
// be written into it.
func EnsureWritableDir(dir string) error {
	info, err := os.Stat(dir)
	switch {
	case os.IsNotExist(err):
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return fmt.Errorf("failed to create directory %s: %w", dir, err)
		}
	case err != nil:
		return fmt.Errorf("failed to check directory: %w", err)
	case !info.IsDir():
		return fmt.Errorf("path exists but is not a directory: %s", dir)
	}

	testFile := filepath.Join(dir, ".write_test")
	if err := os.WriteFile(testFile, []byte("test"), 0o600); err != nil {
		return fmt.Errorf("directory is not writable: %s: %w", dir, err)
	}
	_ = os.Remove(testFile)
	return nil
}
