package release

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	git "github.com/go-git/go-git/v5"
	gitconfig "github.com/go-git/go-git/v5/config"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"
)

const shortHashLen = 6

// Repo wraps a local git repository for release inspection and tagging.
type Repo struct {
	repo *git.Repository
}

// OpenRepo opens the repository containing path, walking up to find .git.
func OpenRepo(path string) (*Repo, error) {
	r, err := git.PlainOpenWithOptions(path, &git.PlainOpenOptions{DetectDotGit: true})
	if err != nil {
		return nil, fmt.Errorf("open git repository at %s: %w", path, err)
	}
	return &Repo{repo: r}, nil
}

// HeadShort returns the abbreviated hash of the current HEAD commit.
func (r *Repo) HeadShort() (string, error) {
	head, err := r.repo.Head()
	if err != nil {
		return "", fmt.Errorf("resolve HEAD: %w", err)
	}
	return head.Hash().String()[:shortHashLen], nil
}

// Dirty reports whether the worktree has uncommitted changes.
func (r *Repo) Dirty() (bool, error) {
	wt, err := r.repo.Worktree()
	if err != nil {
		return false, fmt.Errorf("open worktree: %w", err)
	}
	status, err := wt.Status()
	if err != nil {
		return false, fmt.Errorf("worktree status: %w", err)
	}
	return !status.IsClean(), nil
}

// SemverTags returns all tags that parse as semantic versions, newest first.
func (r *Repo) SemverTags() ([]string, error) {
	iter, err := r.repo.Tags()
	if err != nil {
		return nil, fmt.Errorf("list tags: %w", err)
	}
	type taggedVersion struct {
		name    string
		version Version
	}
	var tags []taggedVersion
	err = iter.ForEach(func(ref *plumbing.Reference) error {
		name := ref.Name().Short()
		v, parseErr := ParseVersion(name)
		if parseErr != nil {
			return nil
		}
		tags = append(tags, taggedVersion{name: name, version: v})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("iterate tags: %w", err)
	}
	sort.Slice(tags, func(i, j int) bool {
		return Compare(tags[i].version, tags[j].version) > 0
	})
	names := make([]string, len(tags))
	for i, t := range tags {
		names[i] = t.name
	}
	return names, nil
}

// LatestTag returns the highest semantic version tag, if any exist.
func (r *Repo) LatestTag() (string, bool, error) {
	tags, err := r.SemverTags()
	if err != nil {
		return "", false, err
	}
	if len(tags) == 0 {
		return "", false, nil
	}
	return tags[0], true, nil
}

// DescribeVersion derives a version string from the repository state. A HEAD
// sitting exactly on a semver tag yields that version; otherwise the latest
// tag gains a -dev+<commit> suffix, or 0.0.0-dev+<commit> when the repository
// has no semver tags. A dirty worktree appends -modified.
func (r *Repo) DescribeVersion() (string, error) {
	commit, err := r.HeadShort()
	if err != nil {
		return "", err
	}
	dirty, err := r.Dirty()
	if err != nil {
		return "", err
	}

	version := ""
	exact, err := r.exactTag()
	if err != nil {
		return "", err
	}
	if exact != "" {
		version = strings.TrimPrefix(exact, "v")
	} else {
		latest, ok, err := r.LatestTag()
		if err != nil {
			return "", err
		}
		base := "0.0.0"
		if ok {
			base = strings.TrimPrefix(latest, "v")
		}
		version = fmt.Sprintf("%s-dev+%s", base, commit)
	}

	if dirty && !strings.HasSuffix(version, "-modified") {
		version += "-modified"
	}
	return version, nil
}

// exactTag returns the semver tag pointing at HEAD, or "" when HEAD is not
// tagged. Annotated tags are resolved to their target commit.
func (r *Repo) exactTag() (string, error) {
	head, err := r.repo.Head()
	if err != nil {
		return "", fmt.Errorf("resolve HEAD: %w", err)
	}
	iter, err := r.repo.Tags()
	if err != nil {
		return "", fmt.Errorf("list tags: %w", err)
	}
	found := ""
	err = iter.ForEach(func(ref *plumbing.Reference) error {
		name := ref.Name().Short()
		if _, parseErr := ParseVersion(name); parseErr != nil {
			return nil
		}
		hash := ref.Hash()
		if tagObj, tagErr := r.repo.TagObject(hash); tagErr == nil {
			hash = tagObj.Target
		}
		if hash == head.Hash() && found == "" {
			found = name
		}
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("iterate tags: %w", err)
	}
	return found, nil
}

// CreateTag creates an annotated tag at HEAD. The name gains a leading "v"
// when missing and must parse as a semantic version.
func (r *Repo) CreateTag(name, message string) error {
	if !strings.HasPrefix(name, "v") {
		name = "v" + name
	}
	if _, err := ParseVersion(name); err != nil {
		return err
	}
	if _, err := r.repo.Tag(name); err == nil {
		return fmt.Errorf("tag %s already exists", name)
	} else if !errors.Is(err, git.ErrTagNotFound) {
		return fmt.Errorf("check tag %s: %w", name, err)
	}
	head, err := r.repo.Head()
	if err != nil {
		return fmt.Errorf("resolve HEAD: %w", err)
	}
	if message == "" {
		message = "Release " + name
	}
	tagger := &object.Signature{Name: "lrtool", Email: "lrtool@localhost", When: time.Now()}
	if cfg, cfgErr := r.repo.ConfigScoped(gitconfig.SystemScope); cfgErr == nil && cfg.User.Name != "" {
		tagger.Name = cfg.User.Name
		tagger.Email = cfg.User.Email
	}
	_, err = r.repo.CreateTag(name, head.Hash(), &git.CreateTagOptions{
		Tagger:  tagger,
		Message: message,
	})
	if err != nil {
		return fmt.Errorf("create tag %s: %w", name, err)
	}
	return nil
}

// PushTag pushes a tag to origin through the command runner so the user's
// credential helpers and ssh agent apply.
func PushTag(ctx context.Context, runner Runner, name string) error {
	if _, err := runner.Run(ctx, "git", "push", "origin", name); err != nil {
		return fmt.Errorf("push tag %s: %w", name, err)
	}
	return nil
}
