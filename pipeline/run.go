package pipeline

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/buildkite/shellwords"
	"github.com/gofrs/flock"
	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/damianoneill/netdeploy/log"
)

// Status of a stage or a run.
type Status string

const (
	StatusSuccess Status = "success"
	StatusFailed  Status = "failed"
	StatusSkipped Status = "skipped"
)

var (
	// ErrNoAgent is returned when the executor does not carry the label the pipeline requires.
	ErrNoAgent = errors.New("no agent matches label")
	// ErrWorkspaceLocked is returned when another run holds the workspace.
	ErrWorkspaceLocked = errors.New("workspace locked by another run")
	// ErrFailed is returned when a stage or a post step failed.
	ErrFailed = errors.New("pipeline failed")
)

// StageResult holds the outcome of a stage.
type StageResult struct {
	Name     string
	Status   Status
	Duration time.Duration
	Err      error
}

// Result holds the outcome of a run.
type Result struct {
	ID       string
	Status   Status
	Stages   []StageResult
	Post     []StageResult
	Duration time.Duration
}

// Executor defines where and how a pipeline runs.
type Executor struct {
	// Workspace is the directory steps run in. It is created if needed.
	Workspace string
	// Labels are matched against the pipeline agent.
	Labels []string
	// Output receives step output, prefixed with the stage name.
	Output io.Writer
	// Env is added to the process environment of sh steps, after the pipeline environment.
	Env map[string]string
	// Source is a directory inside the repository that checkout scm clones. Defaults to the
	// current directory.
	Source string
}

// Run executes p in the executor's workspace. Post steps run even when ctx is cancelled. The
// returned error wraps ErrFailed when a stage or post step failed.
func (e *Executor) Run(ctx context.Context, p *Pipeline) (*Result, error) {
	if p.Agent != AnyAgent && !e.hasLabel(p.Agent) {
		return nil, errors.Wrap(ErrNoAgent, p.Agent)
	}
	if e.Output == nil {
		e.Output = os.Stdout
	}
	ws, err := filepath.Abs(e.Workspace)
	if err != nil {
		return nil, errors.Wrap(err, "resolve workspace failed")
	}
	if err = os.MkdirAll(ws, 0o750); err != nil {
		return nil, errors.Wrap(err, "create workspace failed")
	}

	// The lock lives beside the workspace so cleanWs leaves it alone.
	lock := flock.New(ws + ".lock")
	locked, err := lock.TryLock()
	if err != nil {
		return nil, errors.Wrap(err, "lock workspace failed")
	}
	if !locked {
		return nil, errors.Wrap(ErrWorkspaceLocked, ws)
	}
	defer func() {
		if err := lock.Unlock(); err != nil {
			log.Warningf("Unlock %s failed: %v", lock.Path(), err)
		}
	}()

	r := &run{ws: ws, src: e.Source, out: e.Output, id: uuid.NewString(), env: e.environ(p)}
	res := &Result{ID: r.id, Status: StatusSuccess}
	start := time.Now()
	log.Noticef("Pipeline %s started in %s", r.id, ws)

	for _, st := range p.Stages {
		if res.Status != StatusSuccess {
			res.Stages = append(res.Stages, StageResult{Name: st.Name, Status: StatusSkipped})
			log.Infof("Stage %q skipped", st.Name)
			continue
		}
		sr := r.stage(ctx, st.Name, st.Steps)
		res.Stages = append(res.Stages, sr)
		if sr.Status != StatusSuccess {
			res.Status = StatusFailed
		}
	}

	// Post steps outlive cancellation of the run.
	postCtx := context.WithoutCancel(ctx)
	post := []Stage{{Name: "post always", Steps: p.Post.Always}}
	if res.Status == StatusSuccess {
		post = append(post, Stage{Name: "post success", Steps: p.Post.Success})
	} else {
		post = append(post, Stage{Name: "post failure", Steps: p.Post.Failure})
	}
	for _, st := range post {
		if len(st.Steps) == 0 {
			continue
		}
		sr := r.stage(postCtx, st.Name, st.Steps)
		res.Post = append(res.Post, sr)
		if sr.Status != StatusSuccess {
			res.Status = StatusFailed
		}
	}

	res.Duration = time.Since(start)
	log.Noticef("Pipeline %s finished: %s in %s", r.id, res.Status, res.Duration.Round(time.Millisecond))
	if res.Status != StatusSuccess {
		return res, ErrFailed
	}
	return res, nil
}

func (e *Executor) hasLabel(label string) bool {
	for _, l := range e.Labels {
		if l == label {
			return true
		}
	}
	return false
}

// environ delivers the environment of sh steps in a stable order.
func (e *Executor) environ(p *Pipeline) []string {
	env := os.Environ()
	for _, vars := range []map[string]string{p.Environment, e.Env} {
		keys := make([]string, 0, len(vars))
		for k := range vars {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			env = append(env, k+"="+vars[k])
		}
	}
	return env
}

type run struct {
	id  string
	ws  string
	src string
	out io.Writer
	env []string
}

func (r *run) stage(ctx context.Context, name string, steps []Step) StageResult {
	log.Infof("Stage %q started", name)
	start := time.Now()
	sr := StageResult{Name: name, Status: StatusSuccess}
	w := newPrefixWriter(r.out, "["+name+"] ")
	for _, s := range steps {
		if err := r.step(ctx, w, s); err != nil {
			sr.Status = StatusFailed
			sr.Err = errors.Wrapf(err, "%s failed", s)
			log.Errorf("Stage %q: %v", name, sr.Err)
			break
		}
	}
	_ = w.Flush()
	sr.Duration = time.Since(start)
	log.Infof("Stage %q %s in %s", name, sr.Status, sr.Duration.Round(time.Millisecond))
	return sr
}

func (r *run) step(ctx context.Context, w io.Writer, s Step) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	switch {
	case s.Checkout != "":
		return r.checkout(ctx, w, s.Checkout, s.Ref)
	case s.Sh != "":
		args, err := shellwords.Split(s.Sh)
		if err != nil {
			return err
		}
		if len(args) == 0 {
			return errors.New("empty command")
		}
		return r.exec(ctx, w, args[0], args[1:]...)
	case s.CleanWs:
		return r.cleanWs()
	}
	return errors.New("empty step")
}

// checkout clones url into the workspace. For scm the url is the root of the repository
// holding Source, and a workspace that is already a git checkout is used as it is.
func (r *run) checkout(ctx context.Context, w io.Writer, url, ref string) error {
	if url == CheckoutSCM {
		if _, err := os.Stat(filepath.Join(r.ws, ".git")); err == nil {
			log.Infof("Workspace %s already checked out", r.ws)
			return nil
		}
		root, err := r.repoRoot(ctx)
		if err != nil {
			return err
		}
		url = root
	}
	if err := r.exec(ctx, w, "git", "clone", "--", url, "."); err != nil {
		return err
	}
	if ref == "" {
		return nil
	}
	return r.exec(ctx, w, "git", "checkout", ref)
}

func (r *run) repoRoot(ctx context.Context) (string, error) {
	dir := r.src
	if dir == "" {
		dir = "."
	}
	cmd := exec.CommandContext(ctx, "git", "rev-parse", "--show-toplevel")
	cmd.Dir = dir
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	b, err := cmd.Output()
	if err != nil {
		return "", errors.Wrapf(err, "locate repository of %s failed: %s", dir, strings.TrimSpace(stderr.String()))
	}
	return strings.TrimSpace(string(b)), nil
}

func (r *run) exec(ctx context.Context, w io.Writer, name string, args ...string) error {
	words := []string{shellwords.Quote(name)}
	for _, a := range args {
		words = append(words, shellwords.Quote(a))
	}
	fmt.Fprintf(w, "+ %s\n", strings.Join(words, " "))
	cmd := exec.CommandContext(ctx, name, args...) // nolint: gosec
	cmd.Dir = r.ws
	cmd.Env = append(r.env, "WORKSPACE="+r.ws, "BUILD_ID="+r.id)
	cmd.Stdout = w
	cmd.Stderr = w
	return cmd.Run()
}

func (r *run) cleanWs() error {
	entries, err := os.ReadDir(r.ws)
	if err != nil {
		return err
	}
	for _, e := range entries {
		if err := os.RemoveAll(filepath.Join(r.ws, e.Name())); err != nil {
			return err
		}
	}
	log.Infof("Workspace %s cleaned", r.ws)
	return nil
}
