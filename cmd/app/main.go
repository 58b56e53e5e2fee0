package main

import (
	"go.uber.org/fx"

	"github.com/MarkPereverzov/Memberly/internal/app"
)

func main() {
	fx.New(app.CreateApp()).Run()
}
