package main

import (
	. "github.com/saylorsolutions/modmake"
)

const (
	kdbxtoolVersion = "0.1.0"
)

func main() {
	b := NewBuild()
	b.Generate().DependsOnRunner("tidy", "", Go().ModTidy())

	kdbxtool := NewAppBuild("kdbxtool", "cmd/kdbxtool", kdbxtoolVersion)
	kdbxtool.Build(func(gb *GoBuild) {
		gb.
			StripDebugSymbols().
			SetVariable("main", "version", kdbxtoolVersion).
			Env("CGO_ENABLED", "0")
	})
	kdbxtool.Variant("windows", "amd64")
	kdbxtool.Variant("linux", "amd64")
	kdbxtool.Variant("linux", "arm64")
	kdbxtool.Variant("darwin", "amd64")
	kdbxtool.Variant("darwin", "arm64")
	b.ImportApp(kdbxtool)

	b.Execute()
}
