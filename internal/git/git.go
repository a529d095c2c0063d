package git

import (
	"fmt"
	"os/exec"
	"path/filepath"
	"strings"
)

// GitStatus contains git integration status information
type GitStatus struct {
	IsRepo         bool
	VaultFile      string
	VaultTracked   bool
	Keyfile        string
	KeyfileTracked bool // Key material committed to git (bad)
	KeyfileIgnored bool // Keyfile in .gitignore (good)
}

// IsGitRepo checks if the working directory is inside a git repository
func IsGitRepo(workDir string) bool {
	cmd := exec.Command("git", "rev-parse", "--is-inside-work-tree")
	cmd.Dir = workDir
	err := cmd.Run()
	return err == nil
}

// IsTracked checks if a file is tracked by git
func IsTracked(workDir, path string) bool {
	cmd := exec.Command("git", "ls-files", "--", path)
	cmd.Dir = workDir
	output, err := cmd.Output()

	if err != nil {
		return false
	}

	return len(strings.TrimSpace(string(output))) > 0
}

// IsIgnored checks if a file is ignored by git (handles all .gitignore files)
func IsIgnored(workDir, path string) bool {
	cmd := exec.Command("git", "check-ignore", "-q", "--", path)
	cmd.Dir = workDir
	err := cmd.Run()

	// git check-ignore returns exit code 0 if file is ignored
	return err == nil
}

// CheckGitIntegration checks how a vault file and its keyfile relate to git.
// Paths are resolved relative to the directory holding the vault file.
func CheckGitIntegration(vaultFile, keyfile string) (*GitStatus, error) {
	abs, err := filepath.Abs(vaultFile)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve vault path: %w", err)
	}
	workDir := filepath.Dir(abs)

	status := &GitStatus{
		VaultFile: filepath.Base(abs),
		Keyfile:   keyfile,
	}

	if !IsGitRepo(workDir) {
		return status, nil
	}
	status.IsRepo = true
	status.VaultTracked = IsTracked(workDir, status.VaultFile)

	if keyfile != "" {
		keyAbs, err := filepath.Abs(keyfile)
		if err != nil {
			return nil, fmt.Errorf("failed to resolve keyfile path: %w", err)
		}
		status.KeyfileTracked = IsTracked(workDir, keyAbs)
		status.KeyfileIgnored = IsIgnored(workDir, keyAbs)
	}

	return status, nil
}

// FormatGitStatus formats git status for display
func FormatGitStatus(status *GitStatus) string {
	if status == nil || !status.IsRepo {
		return ""
	}

	var result strings.Builder
	result.WriteString("\nGit Integration:\n")

	if status.VaultTracked {
		result.WriteString(fmt.Sprintf("   ok: %s is tracked by git\n", status.VaultFile))
	} else {
		result.WriteString(fmt.Sprintf("   warning: %s not tracked (run: git add %s)\n", status.VaultFile, status.VaultFile))
	}

	if status.Keyfile == "" {
		return result.String()
	}

	switch {
	case status.KeyfileTracked:
		result.WriteString(fmt.Sprintf("   error: keyfile %s is tracked by git (run: git rm --cached %s)\n", status.Keyfile, status.Keyfile))
	case status.KeyfileIgnored:
		result.WriteString("   ok: keyfile is in .gitignore\n")
	default:
		result.WriteString(fmt.Sprintf("   warning: keyfile %s not in .gitignore\n", status.Keyfile))
	}

	return result.String()
}
