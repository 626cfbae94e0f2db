package main

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"autoengineer/internal/sandbox"
)

var doctorCmd = &cobra.Command{
	Use:   "doctor",
	Short: "Check podman, the sandbox image and workspace state",
	Args:  cobra.NoArgs,
	RunE:  runDoctor,
}

type checkStatus int

const (
	checkOK checkStatus = iota
	checkWarn
	checkFail
)

type check struct {
	name   string
	status checkStatus
	detail string
}

func runDoctor(cmd *cobra.Command, args []string) error {
	env, err := openEnv(envOptions{sandbox: true, store: true})
	if err != nil {
		return err
	}
	defer env.Close()

	ctx, cancel := commandContext(cmd.Context())
	defer cancel()

	pull, _ := cmd.Flags().GetBool("pull")
	checks := []check{
		{name: "Workspace", detail: env.root},
		{name: "Config", detail: env.cfgPath},
	}

	caps := env.sb.Capabilities()
	if caps.Available {
		checks = append(checks, check{name: "Podman", detail: "version " + caps.PodmanVersion})

		image := check{name: "Image", detail: caps.Image}
		switch {
		case env.sb.ImageExists(ctx, caps.Image):
		case pull:
			if err := env.sb.EnsureImage(ctx); err != nil {
				image.status = checkFail
				image.detail = fmt.Sprintf("%s: pull failed: %v", caps.Image, err)
			} else {
				image.detail = caps.Image + " (pulled)"
			}
		default:
			image.status = checkWarn
			image.detail = caps.Image + " not present; run with --pull"
		}
		checks = append(checks, image)
	} else {
		checks = append(checks, check{name: "Podman", status: checkFail, detail: sandbox.ErrPodmanUnavailable.Error()})
	}

	opts := env.sb.Options()
	checks = append(checks, check{
		name:   "Isolation",
		detail: fmt.Sprintf("network=%s memory=%dMiB pids=%d timeout=%s", opts.NetworkMode, opts.MemoryBytes>>20, opts.PidsLimit, opts.DefaultTimeout),
	})
	if opts.NetworkMode != "none" {
		checks[len(checks)-1].status = checkWarn
	}

	switch {
	case !env.cfg.Store.Enabled:
		checks = append(checks, check{name: "History", status: checkWarn, detail: "disabled"})
	case env.store == nil:
		checks = append(checks, check{name: "History", status: checkFail, detail: env.cfg.StorePath(env.root) + " could not be opened"})
	default:
		version, dirty, err := env.store.SchemaVersion()
		c := check{name: "History", detail: fmt.Sprintf("%s (schema v%d)", env.store.Path(), version)}
		if err != nil || dirty {
			c.status = checkFail
			c.detail = fmt.Sprintf("%s: schema dirty=%v err=%v", env.store.Path(), dirty, err)
		}
		checks = append(checks, c)
	}

	failed := writeChecks(cmd.OutOrStdout(), checks)
	if failed > 0 {
		return fmt.Errorf("%d check(s) failed", failed)
	}
	return nil
}

func writeChecks(w io.Writer, checks []check) int {
	fmt.Fprintln(w, headingStyle.Render("autoeng doctor"))
	failed := 0
	for _, c := range checks {
		mark := okMark()
		switch c.status {
		case checkWarn:
			mark = warnMark()
		case checkFail:
			mark = failMark()
			failed++
		}
		fmt.Fprintf(w, "%s %s%s\n", mark, labelStyle.Render(c.name), c.detail)
	}
	return failed
}
