package availability

import (
	"context"
	"fmt"
	"time"

	"github.com/wolfman30/salon-voice-booking/internal/catalog"
	"github.com/wolfman30/salon-voice-booking/internal/salon"
)

// BatchItem is one pending appointment awaiting a technician.
type BatchItem struct {
	AppointmentID string
	// Start is nil while the caller has not picked a time; only
	// qualification applies then.
	Start      *time.Time
	ServiceIDs []string
}

// BatchQuery assigns technicians to several appointments of one caller.
type BatchQuery struct {
	BusinessID  string
	Location    *time.Location
	Technicians []salon.Technician
	Catalog     []salon.Service
	Items       []BatchItem
}

// BatchOutcome is the result for one item.
type BatchOutcome struct {
	AppointmentID string            `json:"appointment_id"`
	Technician    *salon.Technician `json:"-"`
	Reason        Reason            `json:"reason,omitempty"`
	Message       string            `json:"message"`
}

// Assigned reports whether a technician was chosen.
func (o BatchOutcome) Assigned() bool {
	return o.Technician != nil
}

// AssignBatch walks the items in order and gives each the first suitable
// technician not already used by an earlier item of the same batch.
func (r *Resolver) AssignBatch(ctx context.Context, reader salon.AppointmentReader, q BatchQuery) ([]BatchOutcome, error) {
	used := make(map[string]bool)
	outcomes := make([]BatchOutcome, 0, len(q.Items))

	for _, item := range q.Items {
		out := BatchOutcome{AppointmentID: item.AppointmentID}
		if len(item.ServiceIDs) == 0 {
			out.Reason = ReasonNoServices
			out.Message = "No services listed."
			outcomes = append(outcomes, out)
			continue
		}

		if len(QualifiedTechnicians(q.Technicians, item.ServiceIDs)) == 0 {
			out.Reason = ReasonNoQualifiedTechnician
			out.Message = "No technician is qualified for these services."
			outcomes = append(outcomes, out)
			continue
		}

		if item.Start == nil {
			fresh := QualifiedTechnicians(orderTechnicians(q.Technicians, used), item.ServiceIDs)
			if len(fresh) == 0 {
				out.Reason = ReasonNotEnoughTechnicians
				out.Message = "We don't have enough unique technicians. Everyone qualified is already assigned to your other appointments."
			} else {
				chosen := fresh[0]
				out.Technician = &chosen
				out.Message = fmt.Sprintf("Assigned %s.", chosen.Name())
				used[chosen.ID] = true
			}
			outcomes = append(outcomes, out)
			continue
		}

		res := catalog.Resolution{
			MatchedServiceIDs:    item.ServiceIDs,
			Matched:              catalog.ByIDs(item.ServiceIDs, q.Catalog),
			TotalDurationMinutes: salon.DurationFor(item.ServiceIDs, q.Catalog),
		}
		d, err := r.Check(ctx, reader, Query{
			BusinessID:           q.BusinessID,
			Start:                *item.Start,
			Location:             q.Location,
			Selector:             Anyone,
			Resolution:           &res,
			Technicians:          q.Technicians,
			Catalog:              q.Catalog,
			ExcludeAppointmentID: item.AppointmentID,
			ExcludeTechnicians:   used,
		})
		if err != nil {
			return nil, err
		}
		switch {
		case d.Available:
			out.Technician = d.Technician
			out.Message = fmt.Sprintf("Assigned %s.", d.Technician.Name())
			used[d.Technician.ID] = true
		case d.Reason == ReasonTechnicianNotFound || d.Reason == ReasonNoQualifiedTechnician:
			// Qualified technicians exist but all were taken earlier in the batch.
			out.Reason = ReasonNotEnoughTechnicians
			out.Message = "We don't have enough unique technicians. Everyone qualified is already assigned to your other appointments."
		default:
			out.Reason = d.Reason
			out.Message = d.Message
		}
		outcomes = append(outcomes, out)
	}
	return outcomes, nil
}
