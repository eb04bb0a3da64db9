package main

import (
	"fmt"

	"pushgate/internal/security"

	"github.com/spf13/cobra"
)

var (
	tagPushRemote string
	releaseRemote string
)

var tagPushCmd = &cobra.Command{
	Use:   "tag-push <version> [remote]",
	Short: "Push an existing local tag",
	Args:  cobra.RangeArgs(1, 2),
	RunE:  runTagPush,
}

var releaseCmd = &cobra.Command{
	Use:   "release <version>",
	Short: "Push the version tag and create a hosted release",
	Long: `Publish the tag for the given version and create a release with
auto-generated notes from the commit subjects since the previous tag.`,
	Args: cobra.ExactArgs(1),
	RunE: runRelease,
}

func init() {
	releaseCmd.Flags().StringVar(&releaseRemote, "remote", "origin", "Remote to release against")
}

func runTagPush(cmd *cobra.Command, args []string) error {
	version := args[0]
	if err := security.ValidateVersion(version); err != nil {
		return err
	}
	tagPushRemote = "origin"
	if len(args) > 1 {
		if err := security.ValidateRemoteName(args[1]); err != nil {
			return err
		}
		tagPushRemote = args[1]
	}

	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.Close()

	ctx := cmd.Context()
	for _, tag := range []string{"v" + version, version} {
		exists, err := a.repo.TagExists(ctx, tag)
		if err != nil {
			return err
		}
		if !exists {
			continue
		}
		if err := a.repo.PushTag(ctx, tagPushRemote, tag); err != nil {
			return err
		}
		fmt.Printf("Tag %s pushed to %s\n", tag, tagPushRemote)
		return nil
	}
	return fmt.Errorf("no local tag found for version %s", version)
}

func runRelease(cmd *cobra.Command, args []string) error {
	version := args[0]
	if err := security.ValidateVersion(version); err != nil {
		return err
	}
	if err := security.ValidateRemoteName(releaseRemote); err != nil {
		return err
	}

	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.Close()

	url, err := a.orch.Release(cmd.Context(), version, releaseRemote)
	if err != nil {
		return err
	}
	fmt.Printf("Release created: %s\n", url)
	return nil
}
