package handlers

import (
	"reflect"
	"regexp"
	"sync"

	"busline/internal/domain/models"
	"busline/internal/utils"

	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
)

var (
	seatPattern  = regexp.MustCompile(`^[A-Z0-9]{1,8}$`)
	registerOnce sync.Once
)

// RegisterValidators adds the custom binding rules used by request payloads:
// seat (a seat code), hour (0..23) and isodate (YYYY-MM-DD).
func RegisterValidators() {
	registerOnce.Do(func() {
		v, ok := binding.Validator.Engine().(*validator.Validate)
		if !ok {
			return
		}
		_ = v.RegisterValidation("seat", func(fl validator.FieldLevel) bool {
			return fl.Field().Kind() == reflect.String && seatPattern.MatchString(utils.NormalizeSeat(fl.Field().String()))
		})
		_ = v.RegisterValidation("hour", func(fl validator.FieldLevel) bool {
			switch fl.Field().Kind() {
			case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
				return models.ValidHour(int(fl.Field().Int()))
			}
			return false
		})
		_ = v.RegisterValidation("isodate", func(fl validator.FieldLevel) bool {
			if fl.Field().Kind() != reflect.String {
				return false
			}
			_, err := utils.ParseDate(fl.Field().String())
			return err == nil
		})
	})
}
