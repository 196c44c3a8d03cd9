package types

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/opsxjacky/spread-forecast/internal/apperr"
)

var validate = validator.New()

// SeriesRequest 单条连续序列的拼接请求
type SeriesRequest struct {
	Product   string     `json:"product" validate:"required,excludesall=/\\"`
	Month     int        `json:"month" validate:"min=1,max=12"`
	BegYear   int        `json:"beg_year" validate:"min=1"`
	EndYear   int        `json:"end_year" validate:"gtefield=BegYear"`
	Watermark *time.Time `json:"watermark,omitempty"` // 首年预截断的水位日期 (可选)
}

// Years 返回 BegYear..EndYear (含两端)
func (r SeriesRequest) Years() []int {
	if r.EndYear < r.BegYear {
		return nil
	}
	years := make([]int, 0, r.EndYear-r.BegYear+1)
	for y := r.BegYear; y <= r.EndYear; y++ {
		years = append(years, y)
	}
	return years
}

// Leg 返回对应的价差腿描述
func (r SeriesRequest) Leg() Leg {
	return Leg{Product: r.Product, Month: r.Month}
}

// Validate 在任何 I/O 之前校验参数
func (r SeriesRequest) Validate() error {
	if err := validate.Struct(r); err != nil {
		return validationError("invalid series request", err).
			WithContext("product", r.Product).
			WithContext("month", r.Month)
	}
	return nil
}

// SpreadRequest 价差预测请求
type SpreadRequest struct {
	A        SeriesRequest `json:"a"`
	B        SeriesRequest `json:"b"`
	SameYear bool          `json:"same_year"`
	Horizon  int           `json:"horizon" validate:"min=1"`
	Window   int           `json:"window" validate:"min=1"`
	Smoothed bool          `json:"smoothed"`
}

// Validate 校验两条腿及预测参数
func (r SpreadRequest) Validate() error {
	if err := validate.Struct(r); err != nil {
		return validationError("invalid spread request", err)
	}
	return nil
}

// validationError 将 validator 的字段错误整理成一条可读的校验错误
func validationError(message string, err error) *apperr.AppError {
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return apperr.NewValidationError(message, err)
	}
	parts := make([]string, 0, len(fieldErrs))
	for _, fe := range fieldErrs {
		parts = append(parts, describeFieldError(fe))
	}
	return apperr.NewValidationError(message+": "+strings.Join(parts, "; "), nil)
}

func describeFieldError(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return fmt.Sprintf("%s is required", fe.Namespace())
	case "min":
		return fmt.Sprintf("%s must be >= %s, got %v", fe.Namespace(), fe.Param(), fe.Value())
	case "max":
		return fmt.Sprintf("%s must be <= %s, got %v", fe.Namespace(), fe.Param(), fe.Value())
	case "gtefield":
		return fmt.Sprintf("%s must be >= %s, got %v", fe.Namespace(), fe.Param(), fe.Value())
	case "excludesall":
		return fmt.Sprintf("%s contains a path separator", fe.Namespace())
	default:
		return fmt.Sprintf("%s failed %s", fe.Namespace(), fe.Tag())
	}
}
