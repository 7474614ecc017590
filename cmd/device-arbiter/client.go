package main

import (
	"encoding/json"
	"fmt"
	"io"
	"math"

	"github.com/google/renameio"
	"github.com/urfave/cli/v2"

	"github.com/linskybing/device-arbiter/internal/scheduler"
	"github.com/linskybing/device-arbiter/internal/server"
)

func importanceFlag(c *cli.Context) (scheduler.Importance, error) {
	v := c.Uint("importance")
	if uint64(v) > math.MaxUint32 {
		return 0, fmt.Errorf("importance %d out of range", v)
	}
	return scheduler.Importance(v), nil
}

func runSelect(c *cli.Context, socket string) error {
	importance, err := importanceFlag(c)
	if err != nil {
		return err
	}
	resp, err := server.NewClient(socket).Select(c.Context, server.SelectRequest{
		Precision:  c.String("precision"),
		Importance: importance,
	})
	if err != nil {
		return err
	}
	return printJSON(c.App.Writer, resp)
}

func runRelease(c *cli.Context, socket string) error {
	importance, err := importanceFlag(c)
	if err != nil {
		return err
	}
	return server.NewClient(socket).Release(c.Context, importance, c.String("device"))
}

func runStatus(c *cli.Context, socket string) error {
	status, err := server.NewClient(socket).Status(c.Context)
	if err != nil {
		return err
	}
	return writeStatus(c.App.Writer, c.String("output"), status)
}

// writeStatus prints status to w, or atomically replaces the file at path
// when one is given.
func writeStatus(w io.Writer, path string, status server.StatusResponse) error {
	if path == "" {
		return printJSON(w, status)
	}
	data, err := json.MarshalIndent(status, "", "  ")
	if err != nil {
		return err
	}
	if err := renameio.WriteFile(path, append(data, '\n'), 0644); err != nil {
		return fmt.Errorf("error writing status to %s: %w", path, err)
	}
	return nil
}

func printJSON(w io.Writer, v interface{}) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(w, string(data))
	return err
}
