package release

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"
)

// BuildSpec describes a docker image build and publish sequence.
type BuildSpec struct {
	Registry      string
	Image         string
	DockerContext string
	Dockerfile    string

	Version   string
	GitCommit string
	BuildTime string

	Architectures []string
	Multiarch     bool
	Push          bool
	Latest        bool
}

// ArchSuffix maps a platform architecture to its image tag suffix,
// e.g. arm/v7 becomes armv7.
func ArchSuffix(arch string) string {
	return strings.ReplaceAll(arch, "/", "")
}

func (s BuildSpec) fullImage() string {
	if s.Registry == "" {
		return s.Image
	}
	return s.Registry + "/" + s.Image
}

func (s BuildSpec) versionTag() string {
	return s.fullImage() + ":" + s.Version
}

func (s BuildSpec) latestTag() string {
	return s.fullImage() + ":latest"
}

func (s BuildSpec) archTag(arch string) string {
	return fmt.Sprintf("%s:%s-%s", s.fullImage(), s.Version, ArchSuffix(arch))
}

func (s BuildSpec) architectures() []string {
	if len(s.Architectures) == 0 {
		return []string{"amd64", "arm64"}
	}
	return s.Architectures
}

func (s BuildSpec) buildTime() string {
	if s.BuildTime != "" {
		return s.BuildTime
	}
	return time.Now().UTC().Format(time.RFC3339)
}

func (s BuildSpec) docker(args ...string) []string {
	cmd := []string{"docker"}
	if s.DockerContext != "" {
		cmd = append(cmd, "--context", s.DockerContext)
	}
	return append(cmd, args...)
}

func (s BuildSpec) buildCommand(platform, tag, loadOrPush string) []string {
	args := []string{
		"buildx", "build",
		"--platform", "linux/" + platform,
		"--build-arg", "VERSION=" + s.Version,
		"--build-arg", "BUILD_TIME=" + s.buildTime(),
		"--build-arg", "GIT_COMMIT=" + s.GitCommit,
	}
	if s.Dockerfile != "" {
		args = append(args, "-f", s.Dockerfile)
	}
	args = append(args, "-t", tag, loadOrPush, ".")
	return s.docker(args...)
}

// annotateCommand emits the manifest annotate for one arch image. arm/v7
// needs the variant split out since docker treats arch and variant as
// separate manifest fields.
func (s BuildSpec) annotateCommand(manifestTag, archTag, arch string) []string {
	args := []string{"manifest", "annotate", manifestTag, archTag}
	if arch == "arm/v7" {
		args = append(args, "--arch", "arm", "--variant", "v7")
	} else {
		args = append(args, "--arch", arch)
	}
	return s.docker(args...)
}

func (s BuildSpec) manifestCommands(manifestTag string, archTags []string) [][]string {
	cmds := [][]string{
		s.docker(append([]string{"manifest", "create", manifestTag}, archTags...)...),
	}
	for _, arch := range s.architectures() {
		cmds = append(cmds, s.annotateCommand(manifestTag, s.archTag(arch), arch))
	}
	cmds = append(cmds, s.docker("manifest", "push", manifestTag))
	return cmds
}

// Commands returns the ordered docker command sequence for the build.
func (s BuildSpec) Commands() [][]string {
	if s.Multiarch {
		return s.multiarchCommands()
	}
	return s.singleArchCommands()
}

func (s BuildSpec) multiarchCommands() [][]string {
	var cmds [][]string
	loadOrPush := "--load"
	if s.Push {
		loadOrPush = "--push"
	}
	var archTags []string
	for _, arch := range s.architectures() {
		tag := s.archTag(arch)
		archTags = append(archTags, tag)
		cmds = append(cmds, s.buildCommand(arch, tag, loadOrPush))
	}
	if s.Push {
		cmds = append(cmds, s.manifestCommands(s.versionTag(), archTags)...)
		if s.Latest {
			cmds = append(cmds, s.manifestCommands(s.latestTag(), archTags)...)
		}
	}
	return cmds
}

func (s BuildSpec) singleArchCommands() [][]string {
	arch := s.architectures()[0]
	cmds := [][]string{
		s.buildCommand(arch, s.versionTag(), "--load"),
	}
	if s.Latest {
		cmds = append(cmds, s.docker("tag", s.versionTag(), s.latestTag()))
	}
	if s.Push {
		cmds = append(cmds, s.docker("push", s.versionTag()))
		if s.Latest {
			cmds = append(cmds, s.docker("push", s.latestTag()))
		}
	}
	return cmds
}

// RenderPlan writes the build plan without executing anything.
func RenderPlan(w io.Writer, s BuildSpec) {
	fmt.Fprintf(w, "Build plan for %s\n", s.versionTag())
	fmt.Fprintf(w, "  version:       %s\n", s.Version)
	fmt.Fprintf(w, "  commit:        %s\n", s.GitCommit)
	fmt.Fprintf(w, "  architectures: %s\n", strings.Join(s.architectures(), ", "))
	fmt.Fprintf(w, "  multiarch:     %v\n", s.Multiarch)
	fmt.Fprintf(w, "  push:          %v\n", s.Push)
	fmt.Fprintf(w, "  tag latest:    %v\n", s.Latest)
	fmt.Fprintln(w, "commands:")
	for _, cmd := range s.Commands() {
		fmt.Fprintf(w, "  %s\n", strings.Join(cmd, " "))
	}
}

// Execute runs every command in the build plan, stopping at the first
// failure.
func Execute(ctx context.Context, runner Runner, s BuildSpec) error {
	for _, cmd := range s.Commands() {
		if _, err := runner.Run(ctx, cmd[0], cmd[1:]...); err != nil {
			return err
		}
	}
	return nil
}
