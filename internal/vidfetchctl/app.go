package vidfetchctl

import (
	"context"
	"io"
	"os"
	"time"

	"github.com/vidfetch/vidfetch/pkg/client"
)

// App bundles the backend connection details with the writer command
// output goes to, keeping command implementations testable.
type App struct {
	Params *Params
	Out    io.Writer
}

type Params struct {
	ApiConnectionDetails *client.ApiConnectionDetails
}

func New() *App {
	return &App{
		Params: &Params{ApiConnectionDetails: &client.ApiConnectionDetails{}},
		Out:    os.Stdout,
	}
}

func (a *App) client() *client.Client {
	return client.New(a.Params.ApiConnectionDetails)
}

func timeout() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), 30*time.Second)
}
