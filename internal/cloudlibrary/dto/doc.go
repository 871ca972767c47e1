// Package dto holds the JSON wire records of the cloudLibrary and Findaway
// APIs and converts them into model types.
//
// Every response type has a Validate method; callers must validate before
// converting, so an unexpected shape fails at the boundary instead of
// surfacing later as a nil dereference or a silently empty field.
//
//	var items dto.JSONPatronItems
//	if err := json.Unmarshal(body, &items); err != nil {
//	    return err
//	}
//	if err := items.Validate(); err != nil {
//	    return err
//	}
//	loans := items.ToLoanRecords()
package dto
