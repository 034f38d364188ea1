package dto

import "Dyvine/model"

// OperationAccepted is returned when a background operation was created.
type OperationAccepted struct {
	OperationID string                `json:"operation_id"`
	Status      model.OperationStatus `json:"status"`
	Progress    int                   `json:"progress"`
}

// LivestreamResponse reports the outcome of a livestream request.
type LivestreamResponse struct {
	OperationID  string                `json:"operation_id,omitempty"`
	Status       model.OperationStatus `json:"status"`
	Stage        string                `json:"stage,omitempty"`
	DownloadPath string                `json:"download_path,omitempty"`
	Error        *model.OperationError `json:"error"`
}

// OperationList wraps a list of operation snapshots.
type OperationList struct {
	Operations []model.Operation `json:"operations"`
	Total      int               `json:"total"`
}

// NewOperationAccepted builds the accepted body from a snapshot.
func NewOperationAccepted(op model.Operation) OperationAccepted {
	return OperationAccepted{OperationID: op.ID, Status: op.Status, Progress: op.Progress}
}

// NewLivestreamResponse builds the livestream body from a snapshot.
func NewLivestreamResponse(op model.Operation) LivestreamResponse {
	return LivestreamResponse{
		OperationID:  op.ID,
		Status:       op.Status,
		Stage:        op.Stage,
		DownloadPath: op.DownloadPath,
		Error:        op.Error,
	}
}
