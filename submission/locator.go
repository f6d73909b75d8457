package submission

import (
	"context"

	"github.com/formationdesk/checkin/geo"
	"github.com/formationdesk/checkin/schema"
)

// GateLocator runs the location gate on a positioner.
type GateLocator struct {
	Positioner geo.Positioner
	Options    []geo.Option
}

func (g GateLocator) Locate(ctx context.Context) (schema.GeoReading, error) {
	return geo.AcquireLocation(ctx, g.Positioner, g.Options...)
}
