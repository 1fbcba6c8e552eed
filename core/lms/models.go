// Package lms describes the remote learning platform: its entities, the response shapes its
// different backend versions return and the candidate endpoints for each operation.
package lms

import (
	"bytes"
	"encoding/json"
	"strconv"
)

// Activity and homework status values, as sent by the backend.
const (
	TimeStatusOpen = 2 // activity currently open / homework deadline passed

	ActivityPlain        = 0
	ActivityCodeRequired = 1

	ActivityStatusSigned = 1

	HomeworkNotSubmitted = 0
)

// Scalar is a JSON scalar the backend sends either quoted ("2") or bare (2), or as null.
type Scalar struct {
	Value  string
	Valid  bool
	Quoted bool
}

func (s *Scalar) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*s = Scalar{}
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var str string
		if err := json.Unmarshal(data, &str); err != nil {
			return err
		}
		*s = Scalar{Value: str, Valid: true, Quoted: true}
		return nil
	}
	var num json.Number
	if err := json.Unmarshal(data, &num); err != nil {
		return err
	}
	*s = Scalar{Value: num.String(), Valid: true}
	return nil
}

func (s Scalar) MarshalJSON() ([]byte, error) {
	if !s.Valid {
		return []byte("null"), nil
	}
	if !s.Quoted {
		return []byte(s.Value), nil
	}
	return json.Marshal(s.Value)
}

// Int returns the integer value of s, or -1 when s is absent or not an integer.
func (s Scalar) Int() int {
	if !s.Valid {
		return -1
	}
	i, err := strconv.Atoi(s.Value)
	if err != nil {
		return -1
	}
	return i
}

// Absent reports whether s is missing, null, an empty string or a bare zero. A quoted "0" is
// a value.
func (s Scalar) Absent() bool {
	if !s.Valid || s.Value == "" {
		return true
	}
	if s.Quoted {
		return false
	}
	f, err := strconv.ParseFloat(s.Value, 64)
	return err == nil && f == 0
}

// NewScalar returns a valid quoted Scalar holding v.
func NewScalar(v string) Scalar {
	return Scalar{Value: v, Valid: true, Quoted: true}
}

type (
	// Course is an enrolled course. Refetched every cycle.
	Course struct {
		ID       int    `json:"id"`
		CourseID int    `json:"courseId"`
		Name     string `json:"name"`
		ClassID  int    `json:"classId"`
	}

	// Activity is an attendance ("check-in") activity of a course.
	Activity struct {
		ID         int    `json:"id"`
		RelationID int    `json:"relationId"`
		Type       Scalar `json:"type"`
		TimeStatus Scalar `json:"timeStatus"`
		Status     Scalar `json:"status"`
	}

	// Homework is a homework item of a course.
	Homework struct {
		ID         int    `json:"id"`
		Title      string `json:"homeworkTitle"`
		TimeStatus Scalar `json:"timeStatus"`
		Score      Scalar `json:"score"`
		State      Scalar `json:"state"`
	}

	// AttendancePayload is the body of an attendance submission.
	AttendancePayload struct {
		AttendanceID int    `json:"attendanceID"`
		ClassID      int    `json:"classID"`
		UserID       string `json:"userID"`
		Location     string `json:"location"` // "<lon>,<lat>"
		EnterWay     int    `json:"enterWay"`
		Code         string `json:"attendanceCode"`
	}
)

// Key returns the course identifier used in per-course endpoints.
func (c Course) Key() int {
	if c.ID != 0 {
		return c.ID
	}
	return c.CourseID
}

// SubmissionID returns the identifier an attendance submission refers to.
func (a Activity) SubmissionID() int {
	if a.RelationID != 0 {
		return a.RelationID
	}
	return a.ID
}

// Open reports whether the activity is currently running.
func (a Activity) Open() bool {
	return a.TimeStatus.Int() == TimeStatusOpen
}

// Signed reports whether the user already signed the activity.
func (a Activity) Signed() bool {
	return a.Status.Int() == ActivityStatusSigned
}

// CodeRequired reports whether signing needs an attendance code.
func (a Activity) CodeRequired() bool {
	return a.Type.Int() == ActivityCodeRequired
}

// Incomplete reports whether the homework is past its deadline, ungraded and not submitted.
func (h Homework) Incomplete() bool {
	return h.TimeStatus.Int() == TimeStatusOpen && h.Score.Absent() && h.State.Int() == HomeworkNotSubmitted
}

// DisplayTitle returns the title, or a placeholder for untitled homework.
func (h Homework) DisplayTitle() string {
	if h.Title == "" {
		return "unknown"
	}
	return h.Title
}

// NewAttendancePayload builds the submission payload for `act` of the course class `classID`.
func NewAttendancePayload(act Activity, classID int, userID, lat, lon, code string) AttendancePayload {
	return AttendancePayload{
		AttendanceID: act.SubmissionID(),
		ClassID:      classID,
		UserID:       userID,
		Location:     lon + "," + lat,
		EnterWay:     1,
		Code:         code,
	}
}
