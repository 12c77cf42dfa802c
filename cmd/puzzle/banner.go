package main

import (
	"fmt"
	"io"

	"github.com/fatih/color"

	"github.com/xraph/puzzle"
)

var (
	bold    = color.New(color.Bold).SprintFunc()
	cyan    = color.New(color.FgCyan).SprintFunc()
	green   = color.New(color.FgGreen).SprintFunc()
	yellow  = color.New(color.FgYellow).SprintFunc()
	red     = color.New(color.FgRed).SprintFunc()
	blue    = color.New(color.FgBlue).SprintFunc()
	magenta = color.New(color.FgMagenta).SprintFunc()
	gray    = color.New(color.FgHiBlack).SprintFunc()
)

func methodColor(method string) string {
	switch method {
	case "GET":
		return green(method)
	case "POST":
		return yellow(method)
	case "PUT", "PATCH":
		return blue(method)
	case "DELETE":
		return red(method)
	default:
		return magenta(method)
	}
}

// printRoutes writes the route table of every gateway in order.
func printRoutes(w io.Writer, reg *puzzle.Registry, gateways []*puzzle.Token) error {
	for _, tok := range gateways {
		regs, err := puzzle.Plan(reg, tok)
		if err != nil {
			return err
		}

		instance, err := reg.Resolve(tok)
		if err != nil {
			return err
		}

		port := 0
		if u, ok := instance.(interface{ Base() *puzzle.Gateway }); ok {
			port = u.Base().Config().Port
		}

		fmt.Fprintf(w, "%s %s\n", bold(cyan(tok.Name())), gray(fmt.Sprintf(":%d", port)))

		for _, r := range regs {
			fmt.Fprintf(w, "  %-16s %-36s %s\n", methodColor(r.Method), r.Path, gray(r.Unit))
		}
	}

	return nil
}
