package main

import (
	"context"

	"github.com/faizmokh/hadir/internal/cli"
)

func main() {
	ctx := context.Background()
	cli.Main(ctx)
}
