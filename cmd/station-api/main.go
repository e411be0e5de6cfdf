package main

import (
	"context"
)

func main() {
	app := mustBootstrapStationAPI()
	defer app.Close()

	if err := app.Run(); err != nil && err != context.Canceled {
		panic(err)
	}
}
