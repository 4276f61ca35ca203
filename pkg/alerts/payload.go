package alerts

import (
	"time"

	"github.com/ogulcanaydogan/opsalert/pkg/model"
)

// GenericPayload is posted to the alerts endpoint.
type GenericPayload struct {
	AlertID        string         `json:"alert_id"`
	AlertType      string         `json:"alert_type"`
	Title          string         `json:"title"`
	Message        string         `json:"message"`
	ClientID       *string        `json:"client_id"`
	SubscriptionID *string        `json:"subscription_id"`
	InstallmentID  *string        `json:"installment_id"`
	Metadata       model.Metadata `json:"metadata"`
	CreatedAt      string         `json:"created_at"`
	Color          string         `json:"color"`
	TypeLabel      string         `json:"type_label"`
}

// StageInfo summarizes the program stage an alert refers to.
type StageInfo struct {
	StageNumber int    `json:"stage_number"`
	StageName   string `json:"stage_name"`
	StartDate   string `json:"start_date"`
	EndDate     string `json:"end_date"`
	ProgramDay  int    `json:"program_day"`
}

// StagePayload is posted to the stage-change endpoint.
type StagePayload struct {
	AlertID        string         `json:"alert_id"`
	AlertType      string         `json:"alert_type"`
	Title          string         `json:"title"`
	Message        string         `json:"message"`
	ClientID       *string        `json:"client_id"`
	SubscriptionID *string        `json:"subscription_id"`
	Metadata       model.Metadata `json:"metadata"`
	CreatedAt      string         `json:"created_at"`
	StageInfo      StageInfo      `json:"stage_info"`
}

// PhaseActivationPayload is posted, best effort, after a stage change is delivered.
type PhaseActivationPayload struct {
	AlertID        string  `json:"alert_id"`
	ClientID       *string `json:"client_id"`
	SubscriptionID *string `json:"subscription_id"`
	StageNumber    int     `json:"stage_number"`
	StageName      string  `json:"stage_name"`
	StartDate      string  `json:"start_date"`
	EndDate        string  `json:"end_date"`
	ProgramDay     int     `json:"program_day"`
	DiscordChannel string  `json:"discord_channel"`
	Timestamp      string  `json:"timestamp"`
}

func buildGeneric(a *model.Alert) any {
	return GenericPayload{
		AlertID:        a.ID,
		AlertType:      string(a.Type),
		Title:          a.Title,
		Message:        a.Message,
		ClientID:       nullable(a.ClientID),
		SubscriptionID: nullable(a.SubscriptionID),
		InstallmentID:  nullable(a.InstallmentID),
		Metadata:       metadataOf(a),
		CreatedAt:      a.CreatedAt.UTC().Format(time.RFC3339),
		Color:          ColorFor(a.Type),
		TypeLabel:      LabelFor(a.Type),
	}
}

func buildStage(a *model.Alert) any {
	return StagePayload{
		AlertID:        a.ID,
		AlertType:      string(a.Type),
		Title:          a.Title,
		Message:        a.Message,
		ClientID:       nullable(a.ClientID),
		SubscriptionID: nullable(a.SubscriptionID),
		Metadata:       metadataOf(a),
		CreatedAt:      a.CreatedAt.UTC().Format(time.RFC3339),
		StageInfo:      stageInfo(a.Metadata),
	}
}

func buildPhaseActivation(a *model.Alert, now time.Time) PhaseActivationPayload {
	info := stageInfo(a.Metadata)
	return PhaseActivationPayload{
		AlertID:        a.ID,
		ClientID:       nullable(a.ClientID),
		SubscriptionID: nullable(a.SubscriptionID),
		StageNumber:    info.StageNumber,
		StageName:      info.StageName,
		StartDate:      info.StartDate,
		EndDate:        info.EndDate,
		ProgramDay:     info.ProgramDay,
		DiscordChannel: a.Metadata.String("discord_channel"),
		Timestamp:      now.UTC().Format(time.RFC3339),
	}
}

func stageInfo(m model.Metadata) StageInfo {
	return StageInfo{
		StageNumber: m.Int("stage_number"),
		StageName:   m.String("stage_name"),
		StartDate:   m.String("start_date"),
		EndDate:     m.String("end_date"),
		ProgramDay:  m.Int("program_day"),
	}
}

func metadataOf(a *model.Alert) model.Metadata {
	if a.Metadata == nil {
		return model.Metadata{}
	}
	return a.Metadata
}

func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
