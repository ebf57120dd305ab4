package main

import (
	"github.com/alecthomas/kong"

	"github.com/solarlink/solarctl/internal/cli"
)

func main() {
	var c cli.CLI
	ctx := kong.Parse(&c,
		kong.Name("solarctl"),
		kong.Description("Provision solar inverter Wi-Fi over Bluetooth and watch it from the cloud."),
		kong.UsageOnError(),
		kong.Vars(cli.Vars()),
	)
	ctx.FatalIfErrorf(ctx.Run(&c))
}
