package dto

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/handiism/cloudlibrary-downloader/internal/model"
)

// JSONPatronItems is the loan list returned by the mybooks route.
type JSONPatronItems struct {
	PatronItems *[]JSONPatronItem `json:"patronItems"`
}

// JSONPatronItem is one loaned title.
type JSONPatronItem struct {
	ItemID    FlexString   `json:"itemId"`
	Title     string       `json:"title"`
	Authors   StringList   `json:"authors"`
	MediaType string       `json:"mediaType"`
	DueDate   *ServiceTime `json:"dueDate"`
}

// Validate checks the response shape.
func (p *JSONPatronItems) Validate() error {
	if p.PatronItems == nil {
		return errors.New("response does not contain patronItems")
	}
	for i, item := range *p.PatronItems {
		if item.ItemID == "" {
			return fmt.Errorf("patronItems[%d] has no itemId", i)
		}
	}
	return nil
}

// ToLoanRecords converts the list, preserving service order.
func (p *JSONPatronItems) ToLoanRecords() []model.LoanRecord {
	records := make([]model.LoanRecord, 0, len(*p.PatronItems))
	for _, item := range *p.PatronItems {
		records = append(records, model.LoanRecord{
			MediaID:   string(item.ItemID),
			Title:     item.Title,
			Authors:   []string(item.Authors),
			DueDate:   item.DueDate.Ptr(),
			Status:    model.StatusOnLoan,
			MediaType: item.MediaType,
		})
	}
	return records
}

// JSONDetail is the title detail route response.
type JSONDetail struct {
	Book *JSONBook `json:"book"`
}

// JSONBook is the catalog description of a title.
type JSONBook struct {
	ItemID      FlexString `json:"itemId"`
	Title       string     `json:"title"`
	SubTitle    string     `json:"SubTitle"`
	Authors     StringList `json:"authors"`
	ISBN        string     `json:"isbn"`
	Description string     `json:"description"`
	Publisher   string     `json:"publisher"`
	MediaType   string     `json:"mediaType"`
	Status      string     `json:"status"`
}

// statusCanLoan is the detail status of a borrowable title.
const statusCanLoan = "CAN_LOAN"

// CanLoan reports whether the service offers the title for borrowing.
func (b *JSONBook) CanLoan() bool {
	return b.Status == statusCanLoan
}

// FullTitle joins title and subtitle, dropping the generic "A Novel".
func (b *JSONBook) FullTitle() string {
	if b.SubTitle == "" || equalFold(b.SubTitle, "a novel") {
		return b.Title
	}
	return b.Title + ": " + b.SubTitle
}

// ToLoanRecord converts a detail response into a record with the given status.
func (b *JSONBook) ToLoanRecord(mediaID string, status model.LoanStatus) model.LoanRecord {
	return model.LoanRecord{
		MediaID:   mediaID,
		Title:     b.Title,
		Authors:   []string(b.Authors),
		Status:    status,
		MediaType: b.MediaType,
	}
}

// JSONLendingResult is returned by the borrow and return actions.
type JSONLendingResult struct {
	Error  *JSONLendingError `json:"error"`
	Status string            `json:"status"`
}

// JSONLendingError is the error object of a lending action. The service
// sometimes sends a bare string instead of an object.
type JSONLendingError struct {
	Msg                 string `json:"msg"`
	ReaktorErrorMessage string `json:"reaktorErrorMessage"`
}

// UnmarshalJSON implements json.Unmarshaler.
func (e *JSONLendingError) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		e.Msg = s
		return nil
	}
	type plain JSONLendingError
	return json.Unmarshal(data, (*plain)(e))
}

// Message returns the most specific error text available.
func (e *JSONLendingError) Message() string {
	if e.Msg != "" {
		return e.Msg
	}
	if e.ReaktorErrorMessage != "" {
		return e.ReaktorErrorMessage
	}
	return "unspecified error"
}

// Lending result codes.
const (
	ErrorTooManyLoans = "TOO_MANY_LOANS"
	StatusFailed      = "FAILED"
)

// Failed reports whether the action was refused.
func (r *JSONLendingResult) Failed() bool {
	return r.Error != nil || r.Status == StatusFailed
}
