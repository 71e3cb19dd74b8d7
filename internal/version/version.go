package version

import "fmt"

// Заполняются через -ldflags "-X github.com/vladislavdragonenkov/lessonbook/internal/version.version=...".
var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

// Info возвращает версию, коммит и дату сборки.
func Info() (v, c, d string) { return version, commit, date }

// Version возвращает только версию сборки.
func Version() string { return version }

func String() string {
	return fmt.Sprintf("lessonbook version=%s commit=%s date=%s", version, commit, date)
}
