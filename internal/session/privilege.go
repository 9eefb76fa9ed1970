package session

import (
	"errors"
	"os"
	"os/exec"
	"os/user"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog/log"

	"kioskctl/internal/tools"
)

var ErrExecUnavailable = errors.New("session: no elevation mechanism available")

const defaultPath = "/usr/local/sbin:/usr/local/bin:/usr/sbin:/usr/bin:/sbin:/bin"

// PrivilegeRunner executes commands as the session owner with a minimal
// environment built from the Context. When the caller already is the owner
// it runs directly; otherwise it elevates through sudo (preferred, passes
// argv verbatim) or a quoted `su -c` command line.
type PrivilegeRunner struct {
	Owner string
	Ctx   Context

	// Injection points for tests; zero values select production behavior.
	Runner      tools.CommandRunner
	Detach      tools.DetachedRunner
	LookPath    func(string) (string, error)
	CurrentUser func() string
	LookupHome  func(string) (home string, uid string, err error)
	PathExists  func(string) bool
}

func (r *PrivilegeRunner) Run(name string, args ...string) ([]byte, []byte, int32, error) {
	if r.currentUser() == r.Owner {
		return r.runner().Run(name, args...)
	}

	argv, err := r.elevate(name, args)
	if err != nil {
		return nil, nil, 127, err
	}
	return r.runner().Run(argv[0], argv[1:]...)
}

// StartDetached launches a command as the owner in its own session, output
// appended to logPath.
func (r *PrivilegeRunner) StartDetached(logPath string, name string, args ...string) error {
	if r.currentUser() == r.Owner {
		return r.detach().StartDetached(logPath, name, args...)
	}

	argv, err := r.elevate(name, args)
	if err != nil {
		return err
	}
	return r.detach().StartDetached(logPath, argv[0], argv[1:]...)
}

// elevate builds the full argv for running name/args as the owner.
func (r *PrivilegeRunner) elevate(name string, args []string) ([]string, error) {
	env := r.environ()

	if r.available("sudo") {
		argv := []string{"sudo", "-n", "-u", r.Owner, "env"}
		argv = append(argv, env...)
		argv = append(argv, name)
		argv = append(argv, args...)
		return argv, nil
	}

	if r.available("su") {
		// su re-parses its -c argument through a shell, so every word is
		// single-quote escaped.
		words := append([]string{"env"}, env...)
		words = append(words, name)
		words = append(words, args...)
		return []string{"su", r.Owner, "-c", joinCommand(words)}, nil
	}

	log.Error().Msgf("session.PrivilegeRunner.elevate owner=%q cmd=%q err=%v", r.Owner, name, ErrExecUnavailable)
	return nil, ErrExecUnavailable
}

// environ assembles the minimal K=V environment for owner commands.
func (r *PrivilegeRunner) environ() []string {
	home, uid := r.ownerHome()

	env := []string{
		"DISPLAY=" + r.Ctx.Display,
		"HOME=" + home,
		"USER=" + r.Owner,
		"LOGNAME=" + r.Owner,
		"XDG_CONFIG_HOME=" + filepath.Join(home, ".config"),
		"XDG_DATA_HOME=" + filepath.Join(home, ".local", "share"),
		"PATH=" + defaultPath,
	}
	if r.Ctx.BusAddress != "" {
		env = append(env, "DBUS_SESSION_BUS_ADDRESS="+r.Ctx.BusAddress)
	}
	if uid != "" {
		runtimeDir := filepath.Join("/run", "user", uid)
		if r.pathExists(runtimeDir) {
			env = append(env, "XDG_RUNTIME_DIR="+runtimeDir)
		}
	}
	return env
}

func (r *PrivilegeRunner) ownerHome() (string, string) {
	lookup := r.LookupHome
	if lookup == nil {
		lookup = systemLookupHome
	}
	home, uid, err := lookup(r.Owner)
	if err != nil || home == "" {
		return filepath.Join("/home", r.Owner), uid
	}
	return home, uid
}

func systemLookupHome(owner string) (string, string, error) {
	u, err := user.Lookup(owner)
	if err != nil {
		return "", "", err
	}
	return u.HomeDir, u.Uid, nil
}

func (r *PrivilegeRunner) available(name string) bool {
	lookPath := r.LookPath
	if lookPath == nil {
		lookPath = exec.LookPath
	}
	_, err := lookPath(name)
	return err == nil
}

func (r *PrivilegeRunner) currentUser() string {
	if r.CurrentUser != nil {
		return r.CurrentUser()
	}
	u, err := user.Current()
	if err != nil {
		return ""
	}
	return u.Username
}

func (r *PrivilegeRunner) runner() tools.CommandRunner {
	if r.Runner != nil {
		return r.Runner
	}
	return tools.ExecRunner{}
}

func (r *PrivilegeRunner) detach() tools.DetachedRunner {
	if r.Detach != nil {
		return r.Detach
	}
	return tools.ExecRunner{}
}

func (r *PrivilegeRunner) pathExists(path string) bool {
	if r.PathExists != nil {
		return r.PathExists(path)
	}
	return fileExists(path)
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

func joinCommand(words []string) string {
	var builder strings.Builder
	for i, word := range words {
		if i > 0 {
			builder.WriteByte(' ')
		}
		builder.WriteString(shellEscape(word))
	}
	return builder.String()
}

func shellEscape(value string) string {
	if value == "" {
		return "''"
	}
	return "'" + strings.ReplaceAll(value, "'", `'"'"'`) + "'"
}
