package builder

import (
	"time"

	"github.com/sk-go/agentflow/pkg/models"
)

// seedTemplates returns the templates every registry starts with.
func seedTemplates() []models.WorkflowTemplate {
	return []models.WorkflowTemplate{
		{
			ID:          "email-communication",
			Name:        "Email Communication",
			Description: "Fetch client data, compose an email with AI assistance and send it",
			Steps: []models.StepTemplate{
				{
					Name: "Prepare Email Data",
					Type: models.DataFetchStep,
					Action: models.Action{
						Type: "fetch_client_data",
						Parameters: map[string]interface{}{
							"client_id": "${client_id}",
						},
					},
					RiskLevel:  models.LowRisk,
					Timeout:    5 * time.Second,
					MaxRetries: 2,
					Order:      0,
				},
				{
					Name: "Compose Email",
					Type: models.AIProcessingStep,
					Action: models.Action{
						Type: "compose_email",
						Parameters: map[string]interface{}{
							"subject": "${subject}",
							"tone":    "${tone}",
						},
					},
					DependsOn:        []string{"Prepare Email Data"},
					RiskLevel:        models.MediumRisk,
					RequiresApproval: true,
					Timeout:          30 * time.Second,
					MaxRetries:       1,
					Order:            1,
				},
				{
					Name: "Send Email",
					Type: models.CommunicationStep,
					Action: models.Action{
						Type: "send_email",
						Parameters: map[string]interface{}{
							"recipient": "${recipient}",
						},
					},
					DependsOn:        []string{"Compose Email"},
					RiskLevel:        models.HighRisk,
					RequiresApproval: true,
					Timeout:          10 * time.Second,
					MaxRetries:       2,
					Order:            2,
				},
			},
			Config:          models.DefaultConfig(),
			RequiredContext: []string{"client_id"},
		},
		{
			ID:          "crm-update",
			Name:        "CRM Update",
			Description: "Fetch the current CRM record and apply a reviewed update",
			Steps: []models.StepTemplate{
				{
					Name: "Fetch CRM Record",
					Type: models.DataFetchStep,
					Action: models.Action{
						Type: "fetch_crm_record",
						Parameters: map[string]interface{}{
							"client_id": "${client_id}",
						},
					},
					RiskLevel:  models.LowRisk,
					Timeout:    5 * time.Second,
					MaxRetries: 2,
					Order:      0,
				},
				{
					Name: "Apply CRM Update",
					Type: models.CRMUpdateStep,
					Action: models.Action{
						Type: "update_record",
						Parameters: map[string]interface{}{
							"fields": "${fields}",
						},
					},
					DependsOn:        []string{"Fetch CRM Record"},
					RiskLevel:        models.MediumRisk,
					RequiresApproval: true,
					Timeout:          15 * time.Second,
					MaxRetries:       1,
					Order:            1,
				},
			},
			Config:          models.DefaultConfig(),
			RequiredContext: []string{"client_id"},
		},
	}
}
