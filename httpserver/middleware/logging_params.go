/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

package middleware

import (
	"time"

	"github.com/ssgreg/logf"

	"github.com/budzeciak/rpc-proxy/log"
)

type loggableIntMap map[string]int64

func (lm loggableIntMap) EncodeLogfObject(e logf.FieldEncoder) error {
	for key, value := range lm {
		e.EncodeFieldInt64(key, value)
	}
	return nil
}

// LoggingParams collects extra data for the final "response completed" record.
// Handlers and round trippers deeper in the chain fill it through the request context.
type LoggingParams struct {
	fields    []log.Field
	timeSlots loggableIntMap
}

// ExtendFields adds fields to the final log record.
func (lp *LoggingParams) ExtendFields(fields ...log.Field) {
	lp.fields = append(lp.fields, fields...)
}

// AddTimeSlotInt adds value to the named element of the time_slots group.
func (lp *LoggingParams) AddTimeSlotInt(name string, dur int64) {
	if lp.timeSlots == nil {
		lp.timeSlots = make(loggableIntMap, 1)
	}
	lp.timeSlots[name] += dur
}

// AddTimeSlotDurationInMs adds dur in milliseconds to the named element of the time_slots group.
// The group is logged only for slow requests.
func (lp *LoggingParams) AddTimeSlotDurationInMs(name string, dur time.Duration) {
	lp.AddTimeSlotInt(name, dur.Milliseconds())
}

func (lp *LoggingParams) timeSlotsField() log.Field {
	return log.Field{Key: "time_slots", Type: logf.FieldTypeObject, Any: lp.timeSlots}
}
