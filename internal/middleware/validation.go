package middleware

import (
	"fmt"
	"reflect"
	"strings"
	"sync"

	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"

	"github.com/jwalitptl/queue-api/internal/model"
)

var registerOnce sync.Once

// RegisterValidators installs the custom binding tags and reports
// validation errors under their JSON field names. It is safe to call more
// than once.
func RegisterValidators() error {
	var err error
	registerOnce.Do(func() {
		v, ok := binding.Validator.Engine().(*validator.Validate)
		if !ok {
			err = fmt.Errorf("unexpected validator engine %T", binding.Validator.Engine())
			return
		}
		v.RegisterTagNameFunc(func(fld reflect.StructField) string {
			name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
			if name == "-" || name == "" {
				return fld.Name
			}
			return name
		})
		err = v.RegisterValidation("queue_status", validateQueueStatus)
	})
	return err
}

// validateQueueStatus accepts the statuses an admin may set by hand.
func validateQueueStatus(fl validator.FieldLevel) bool {
	switch model.AppointmentStatus(fl.Field().String()) {
	case model.AppointmentStatusConfirmed, model.AppointmentStatusServing, model.AppointmentStatusCompleted,
		model.AppointmentStatusCancelled, model.AppointmentStatusNoShow:
		return true
	}
	return false
}
