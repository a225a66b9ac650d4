//go:build mage
// +build mage

package main

import (
	"bytes"
	"fmt"

	"github.com/princjef/mageutil/bintool"
	"github.com/princjef/mageutil/shellcmd"
)

var (
	golines = bintool.Must(bintool.NewGo(
		"github.com/segmentio/golines",
		"v0.12.2",
	))
	linter = bintool.Must(bintool.New(
		"golangci-lint{{.BinExt}}",
		"1.61.0",
		"https://github.com/golangci/golangci-lint/releases/download/v{{.Version}}/golangci-lint-{{.Version}}-{{.GOOS}}-{{.GOARCH}}{{.ArchiveExt}}",
	))
)

// Edge targets the agent binary is built for.
var targets = []struct{ goos, goarch, goarm string }{
	{"linux", "amd64", ""},
	{"linux", "arm64", ""},
	{"linux", "arm", "7"},
}

// Format formats the code.
func Format() error {
	if err := golines.Ensure(); err != nil {
		return err
	}

	return golines.Command(`-m 80 --no-reformat-tags -w .`).Run()
}

// Lint lints the code.
func Lint() error {
	if err := linter.Ensure(); err != nil {
		return err
	}

	return linter.Command(`run`).Run()
}

// Test runs the unit tests, skipping the broker integration tests.
func Test() error {
	return shellcmd.Command(
		`go test -race -cover -timeout 30s -skip Mochi ./...`,
	).Run()
}

// Integration runs the tests against an in-process MQTT broker.
func Integration() error {
	return shellcmd.Command(
		`go test -race -timeout 60s -run Mochi ./connectivity/...`,
	).Run()
}

// Build cross-compiles the agent for every edge target into bin/.
func Build() error {
	for _, t := range targets {
		out := fmt.Sprintf("bin/vibration-agent-%s-%s", t.goos, t.goarch)
		if t.goarm != "" {
			out += "v" + t.goarm
		}
		cmd := fmt.Sprintf(
			`env CGO_ENABLED=0 GOOS=%s GOARCH=%s GOARM=%s go build -trimpath -o %s ./cmd/vibration-agent`,
			t.goos, t.goarch, t.goarm, out,
		)
		if err := shellcmd.Command(cmd).Run(); err != nil {
			return err
		}
	}
	return nil
}

// CI runs format, lint, unit and integration tests, and the build.
func CI() error {
	for _, step := range []func() error{
		Format,
		Lint,
		Test,
		Integration,
		Build,
	} {
		if err := step(); err != nil {
			return err
		}
	}
	return nil
}

// CIVerify runs CI and verifies no thrashing occurred.
func CIVerify() error {
	if err := CI(); err != nil {
		return err
	}

	modified, err := shellcmd.Command(`git ls-files -mz`).Output()
	if err != nil {
		return err
	}
	if len(modified) > 0 {
		files := bytes.Split(modified, []byte{0})
		return fmt.Errorf(
			`found modified files - %s`,
			bytes.Join(files[:len(files)-1], []byte(", ")),
		)
	}

	return nil
}
