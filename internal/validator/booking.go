// Package validator holds the booking decision rules and request payload
// validation.
package validator

import (
	"fmt"
	"reflect"
	"strconv"
	"strings"

	"github.com/Shivanand-hulikatti/hotel-booking/internal/model"
	"github.com/go-playground/validator/v10"
)

// Reason explains a denied decision.
type Reason int

const (
	ReasonNone Reason = iota
	ReasonNotEligible
	ReasonRoomNotFound
	ReasonRoomFull
)

func (r Reason) String() string {
	switch r {
	case ReasonNotEligible:
		return "not_eligible"
	case ReasonRoomNotFound:
		return "room_not_found"
	case ReasonRoomFull:
		return "room_full"
	default:
		return "none"
	}
}

// Decision is the outcome of a booking check.
type Decision struct {
	Allowed bool
	Reason  Reason
	// Detail names the failed check for logs.
	Detail string
}

var allow = Decision{Allowed: true}

func deny(reason Reason, detail string) Decision {
	return Decision{Reason: reason, Detail: detail}
}

// Input is the snapshot a booking decision is made on. Ticket and Room are
// nil when absent.
type Input struct {
	Enrolled  bool
	Ticket    *model.Ticket
	Room      *model.Room
	Occupancy int
}

// Decide runs every check in order and stops at the first failure.
// Eligibility is always judged before the room.
func Decide(in Input) Decision {
	if d := Eligibility(in.Enrolled, in.Ticket); !d.Allowed {
		return d
	}
	return Vacancy(in.Room, in.Occupancy)
}

// Eligibility checks the user's enrollment and ticket.
func Eligibility(enrolled bool, ticket *model.Ticket) Decision {
	switch {
	case !enrolled:
		return deny(ReasonNotEligible, "user is not enrolled")
	case ticket == nil:
		return deny(ReasonNotEligible, "user has no ticket")
	case ticket.TicketType.IsRemote:
		return deny(ReasonNotEligible, "ticket is remote")
	case ticket.Status == model.TicketStatusReserved:
		return deny(ReasonNotEligible, "ticket is not paid")
	case !ticket.TicketType.IncludesHotel:
		return deny(ReasonNotEligible, "ticket does not include hotel")
	}
	return allow
}

// Vacancy checks that the room exists and has a free place.
func Vacancy(room *model.Room, occupancy int) Decision {
	if room == nil {
		return deny(ReasonRoomNotFound, "room does not exist")
	}
	if occupancy >= room.Capacity {
		return deny(ReasonRoomFull, fmt.Sprintf("room has %d of %d places taken", occupancy, room.Capacity))
	}
	return allow
}

type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

func (v ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", v.Field, v.Message)
}

type ValidationErrors []ValidationError

func (v ValidationErrors) Error() string {
	if len(v) == 0 {
		return ""
	}
	var messages []string
	for _, err := range v {
		messages = append(messages, err.Error())
	}
	return fmt.Sprintf("validation failed: %d error(s): [%s]", len(v), strings.Join(messages, "; "))
}

// Details renders the errors as a field to message map.
func (v ValidationErrors) Details() map[string]any {
	details := make(map[string]any, len(v))
	for _, err := range v {
		details[err.Field] = err.Message
	}
	return details
}

// BookingValidator validates booking request payloads.
type BookingValidator struct {
	validate *validator.Validate
}

func NewBookingValidator() *BookingValidator {
	v := validator.New()
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return &BookingValidator{validate: v}
}

// ValidateRoomRequest checks a create or update payload.
func (bv *BookingValidator) ValidateRoomRequest(req *model.RoomRequest) error {
	if req == nil {
		return ValidationErrors{{Field: "body", Message: "is required"}}
	}
	err := bv.validate.Struct(req)
	if err == nil {
		return nil
	}
	validationErrs, ok := err.(validator.ValidationErrors)
	if !ok {
		return err
	}
	var out ValidationErrors
	for _, fe := range validationErrs {
		out = append(out, ValidationError{Field: fe.Field(), Message: messageFor(fe)})
	}
	return out
}

// ParseBookingID parses a booking id path parameter.
func (bv *BookingValidator) ParseBookingID(raw string) (int, error) {
	id, err := strconv.Atoi(raw)
	if err != nil || id < 1 {
		return 0, ValidationErrors{{Field: "bookingId", Message: "must be a positive integer"}}
	}
	return id, nil
}

func messageFor(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "min":
		return fmt.Sprintf("must be at least %s", fe.Param())
	default:
		return fmt.Sprintf("failed on %s", fe.Tag())
	}
}
