// Package identity prepares the process identity of a container running
// under an arbitrary UID: an nss_wrapper passwd entry and the SSH setup
// needed to reach dist-git.
package identity

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// DefaultPasswdTemplate is the nss_wrapper passwd entry for the bot user.
const DefaultPasswdTemplate = "distrobaker:x:${USER_ID}:${GROUP_ID}:DistroBaker:${HOME}:/bin/bash\n"

// NSSWrapperLibrary is preloaded to make the passwd entry visible.
const NSSWrapperLibrary = "libnss_wrapper.so"

// Identity is the user the process runs as.
type Identity struct {
	UID  int
	GID  int
	Home string
}

// Current returns the identity of the running process. HOME falls back to
// the working directory when unset.
func Current() (Identity, error) {
	home := os.Getenv("HOME")
	if home == "" || home == "/" {
		wd, err := os.Getwd()
		if err != nil {
			return Identity{}, fmt.Errorf("determining home: %w", err)
		}
		home = wd
	}
	return Identity{UID: os.Getuid(), GID: os.Getgid(), Home: home}, nil
}

// RenderPasswd substitutes ${USER_ID}, ${GROUP_ID} and ${HOME} in tmpl.
// Other variables are left untouched.
func RenderPasswd(tmpl string, id Identity) string {
	return os.Expand(tmpl, func(name string) string {
		switch name {
		case "USER_ID":
			return strconv.Itoa(id.UID)
		case "GROUP_ID":
			return strconv.Itoa(id.GID)
		case "HOME":
			return id.Home
		}
		return "${" + name + "}"
	})
}

// WritePasswd renders tmpl into a new file under dir and returns its path.
func WritePasswd(dir, tmpl string, id Identity) (string, error) {
	f, err := os.CreateTemp(dir, "passwd-")
	if err != nil {
		return "", fmt.Errorf("creating passwd file: %w", err)
	}
	defer f.Close()

	if _, err := f.WriteString(RenderPasswd(tmpl, id)); err != nil {
		return "", fmt.Errorf("writing passwd file: %w", err)
	}
	if err := f.Chmod(0o644); err != nil {
		return "", fmt.Errorf("chmod passwd file: %w", err)
	}
	return f.Name(), nil
}

// Env returns the environment handing the identity to child processes.
func Env(id Identity, passwdPath string) []string {
	return []string{
		"NSS_WRAPPER_PASSWD=" + passwdPath,
		"NSS_WRAPPER_GROUP=/etc/group",
		"LD_PRELOAD=" + NSSWrapperLibrary,
		"USER_ID=" + strconv.Itoa(id.UID),
		"GROUP_ID=" + strconv.Itoa(id.GID),
		"HOME=" + id.Home,
	}
}

// SSHConfig renders the ssh_config stanza for the dist-git host.
func SSHConfig(host string) string {
	return fmt.Sprintf("Host %s\n    StrictHostKeyChecking yes\n    GSSAPIAuthentication yes\n    GSSAPIDelegateCredentials yes\n", host)
}

// PrepareSSH writes ~/.ssh/config for host and adds knownHost to
// ~/.ssh/known_hosts unless it is already there.
func PrepareSSH(home, host, knownHost string) error {
	dir := filepath.Join(home, ".ssh")
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("creating %s: %w", dir, err)
	}
	if err := os.Chmod(dir, 0o700); err != nil {
		return fmt.Errorf("chmod %s: %w", dir, err)
	}

	if err := os.WriteFile(filepath.Join(dir, "config"), []byte(SSHConfig(host)), 0o600); err != nil {
		return fmt.Errorf("writing ssh config: %w", err)
	}

	knownHost = strings.TrimSpace(knownHost)
	if knownHost == "" {
		return nil
	}
	path := filepath.Join(dir, "known_hosts")
	present, err := hasLine(path, knownHost)
	if err != nil {
		return err
	}
	if present {
		return nil
	}

	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o600)
	if err != nil {
		return fmt.Errorf("opening known_hosts: %w", err)
	}
	defer f.Close()
	if _, err := f.WriteString(knownHost + "\n"); err != nil {
		return fmt.Errorf("writing known_hosts: %w", err)
	}
	return nil
}

func hasLine(path, line string) (bool, error) {
	f, err := os.Open(path)
	if os.IsNotExist(err) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("reading %s: %w", path, err)
	}
	defer f.Close()

	sc := bufio.NewScanner(f)
	for sc.Scan() {
		if strings.TrimSpace(sc.Text()) == line {
			return true, nil
		}
	}
	return false, sc.Err()
}
