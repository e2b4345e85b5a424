// Release automation commands: semver inspection, tagging, and docker
// image builds.
package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/livereview/lrtool/internal/release"
	"github.com/spf13/cobra"
)

var (
	releaseVersion    string
	releaseMessage    string
	releaseTagIt      bool
	releasePushIt     bool
	releaseAllowDirty bool
	releaseMultiarch  bool
	releaseLatest     bool
	releaseDryRun     bool
)

var releaseCmd = &cobra.Command{
	Use:   "release",
	Short: "Version, tag, and docker image automation",
}

var releaseVersionCmd = &cobra.Command{
	Use:   "version",
	Short: "Show the current version derived from git state",
	RunE: func(cmd *cobra.Command, args []string) error {
		repo, err := release.OpenRepo(".")
		if err != nil {
			return err
		}
		version, err := repo.DescribeVersion()
		if err != nil {
			return err
		}
		commit, err := repo.HeadShort()
		if err != nil {
			return err
		}
		tags, err := repo.SemverTags()
		if err != nil {
			return err
		}
		fmt.Printf("version: %s\ncommit:  %s\n", version, commit)
		if len(tags) > 0 {
			limit := min(len(tags), 10)
			fmt.Printf("recent tags: %s\n", strings.Join(tags[:limit], ", "))
		}
		return nil
	},
}

var releaseBumpCmd = &cobra.Command{
	Use:       "bump {patch|minor|major}",
	Short:     "Compute the next version from the latest tag, optionally tag and push",
	Args:      cobra.ExactArgs(1),
	ValidArgs: []string{"patch", "minor", "major"},
	RunE: func(cmd *cobra.Command, args []string) error {
		repo, err := release.OpenRepo(".")
		if err != nil {
			return err
		}
		if !releaseAllowDirty {
			dirty, err := repo.Dirty()
			if err != nil {
				return err
			}
			if dirty {
				return fmt.Errorf("working directory has uncommitted changes, use --allow-dirty to override")
			}
		}

		current := release.Version{}
		if latest, ok, err := repo.LatestTag(); err != nil {
			return err
		} else if ok {
			current, err = release.ParseVersion(latest)
			if err != nil {
				return err
			}
		}
		next, err := current.Bump(args[0])
		if err != nil {
			return err
		}
		fmt.Printf("%s -> %s\n", current, next)

		if !releaseTagIt {
			return nil
		}
		if err := repo.CreateTag(next.Tag(), releaseMessage); err != nil {
			return err
		}
		fmt.Printf("tagged %s\n", next.Tag())
		if releasePushIt {
			runner := &release.ExecRunner{Log: logger}
			if err := release.PushTag(cmd.Context(), runner, next.Tag()); err != nil {
				return err
			}
			fmt.Printf("pushed %s\n", next.Tag())
		}
		return nil
	},
}

var releaseTagCmd = &cobra.Command{
	Use:   "tag",
	Short: "Create an annotated tag for an explicit version",
	RunE: func(cmd *cobra.Command, args []string) error {
		if releaseVersion == "" {
			return fmt.Errorf("--version is required")
		}
		v, err := release.ParseVersion(releaseVersion)
		if err != nil {
			return err
		}
		repo, err := release.OpenRepo(".")
		if err != nil {
			return err
		}
		if err := repo.CreateTag(v.Tag(), releaseMessage); err != nil {
			return err
		}
		fmt.Printf("tagged %s\n", v.Tag())
		if releasePushIt {
			runner := &release.ExecRunner{Log: logger}
			if err := release.PushTag(cmd.Context(), runner, v.Tag()); err != nil {
				return err
			}
			fmt.Printf("pushed %s\n", v.Tag())
		}
		return nil
	},
}

var releaseDockerCmd = &cobra.Command{
	Use:   "docker",
	Short: "Build and publish docker images for a version",
	RunE: func(cmd *cobra.Command, args []string) error {
		repo, err := release.OpenRepo(".")
		if err != nil {
			return err
		}
		version := releaseVersion
		if version == "" {
			version, err = repo.DescribeVersion()
			if err != nil {
				return err
			}
		}
		commit, err := repo.HeadShort()
		if err != nil {
			return err
		}

		spec := release.BuildSpec{
			Registry:      cfg.Release.Registry,
			Image:         cfg.Release.ImageName,
			DockerContext: cfg.Release.DockerContext,
			Version:       version,
			GitCommit:     commit,
			Architectures: cfg.Release.Architectures,
			Multiarch:     releaseMultiarch,
			Push:          releasePushIt,
			Latest:        releaseLatest,
		}
		if spec.Image == "" {
			return fmt.Errorf("release.image_name is not configured")
		}

		release.RenderPlan(os.Stdout, spec)
		if releaseDryRun {
			return nil
		}
		runner := &release.ExecRunner{Log: logger}
		return release.Execute(cmd.Context(), runner, spec)
	},
}

func init() {
	releaseBumpCmd.Flags().BoolVar(&releaseTagIt, "tag", false, "create the annotated tag")
	releaseBumpCmd.Flags().BoolVar(&releasePushIt, "push", false, "push the created tag to origin")
	releaseBumpCmd.Flags().BoolVar(&releaseAllowDirty, "allow-dirty", false, "allow bumping with uncommitted changes")
	releaseBumpCmd.Flags().StringVar(&releaseMessage, "message", "", "tag annotation message")

	releaseTagCmd.Flags().StringVar(&releaseVersion, "version", "", "semantic version to tag")
	releaseTagCmd.Flags().StringVar(&releaseMessage, "message", "", "tag annotation message")
	releaseTagCmd.Flags().BoolVar(&releasePushIt, "push", false, "push the created tag to origin")

	releaseDockerCmd.Flags().StringVar(&releaseVersion, "version", "", "image version (derived from git when omitted)")
	releaseDockerCmd.Flags().BoolVar(&releaseMultiarch, "multiarch", false, "build per-arch images and a manifest list")
	releaseDockerCmd.Flags().BoolVar(&releasePushIt, "push", false, "push images and manifests")
	releaseDockerCmd.Flags().BoolVar(&releaseLatest, "latest", false, "also tag latest")
	releaseDockerCmd.Flags().BoolVar(&releaseDryRun, "dry-run", false, "print the plan without executing")

	releaseCmd.AddCommand(releaseVersionCmd, releaseBumpCmd, releaseTagCmd, releaseDockerCmd)
}
