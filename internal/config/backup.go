package config

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/Aman-CERP/sessionrecall/configs"
)

const (
	// MaxBackups is the number of config backups kept per file.
	MaxBackups = 3

	// BackupSuffix separates the config name from the backup timestamp.
	BackupSuffix = ".bak"
)

// BackupFile copies the config at path to path.bak.<timestamp> and prunes
// older backups beyond MaxBackups. A missing file is not an error and
// returns an empty backup path.
func BackupFile(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return "", nil
		}
		return "", fmt.Errorf("failed to read config for backup: %w", err)
	}

	backupPath := fmt.Sprintf("%s%s.%s", path, BackupSuffix, time.Now().Format("20060102-150405.000000000"))
	if err := os.WriteFile(backupPath, data, 0o644); err != nil {
		return "", fmt.Errorf("failed to write backup: %w", err)
	}

	backups, err := ListBackups(path)
	if err == nil && len(backups) > MaxBackups {
		for _, old := range backups[MaxBackups:] {
			_ = os.Remove(old)
		}
	}
	return backupPath, nil
}

// ListBackups returns the backups of path, newest first. The timestamp
// suffix sorts lexically in time order.
func ListBackups(path string) ([]string, error) {
	dir := filepath.Dir(path)
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to list config directory: %w", err)
	}

	prefix := filepath.Base(path) + BackupSuffix + "."
	var backups []string
	for _, e := range entries {
		if !e.IsDir() && strings.HasPrefix(e.Name(), prefix) {
			backups = append(backups, filepath.Join(dir, e.Name()))
		}
	}
	sort.Sort(sort.Reverse(sort.StringSlice(backups)))
	return backups, nil
}

// InitUserConfig writes the defaults to the user config path. An existing
// file is left alone unless force is set, in which case it is backed up
// first. It returns the written path and the backup path, if any.
func InitUserConfig(force bool) (string, string, error) {
	path := GetUserConfigPath()
	if fileExists(path) && !force {
		return path, "", fmt.Errorf("config already exists at %s (use --force to overwrite)", path)
	}

	backup, err := BackupFile(path)
	if err != nil {
		return path, "", err
	}
	if err := NewConfig().WriteYAML(path); err != nil {
		return path, backup, err
	}
	return path, backup, nil
}

// InitProjectConfig writes the commented project template to
// dir/.recall.yaml, with the same overwrite and backup rules as
// InitUserConfig.
func InitProjectConfig(dir string, force bool) (string, string, error) {
	path := filepath.Join(dir, ProjectConfigYAML)
	if fileExists(path) && !force {
		return path, "", fmt.Errorf("config already exists at %s (use --force to overwrite)", path)
	}

	backup, err := BackupFile(path)
	if err != nil {
		return path, "", err
	}
	if err := os.WriteFile(path, []byte(configs.ProjectConfigTemplate), 0o644); err != nil {
		return path, backup, fmt.Errorf("failed to write project config: %w", err)
	}
	return path, backup, nil
}
