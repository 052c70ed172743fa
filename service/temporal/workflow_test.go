package temporal

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"go.temporal.io/sdk/testsuite"
)

func TestReconcileTransfersWorkflow(t *testing.T) {
	tests := []struct {
		name           string
		input          ReconcileTransfersInput
		mockActivities func(listMock, verifyMock *testsuite.MockCallWrapper)
		expectedError  bool
		validateResult func(*testing.T, *ReconcileTransfersResult)
	}{
		{
			name:  "all transfers confirmed",
			input: ReconcileTransfersInput{LookbackHours: 24, Limit: 500},
			mockActivities: func(listMock, verifyMock *testsuite.MockCallWrapper) {
				listMock.Return(&ListRecentTransfersResult{
					Signatures: []string{"sig1", "sig2", "sig3"},
				}, nil)
				verifyMock.Return(&VerifySignaturesResult{Confirmed: 3}, nil)
			},
			validateResult: func(t *testing.T, result *ReconcileTransfersResult) {
				assert.Equal(t, 3, result.Checked)
				assert.Equal(t, 3, result.Confirmed)
				assert.Equal(t, 0, result.Missing)
				assert.Equal(t, 0, result.Failed)
				assert.Nil(t, result.Error)
			},
		},
		{
			name:  "divergence is reported",
			input: ReconcileTransfersInput{},
			mockActivities: func(listMock, verifyMock *testsuite.MockCallWrapper) {
				listMock.Return(&ListRecentTransfersResult{
					Signatures: []string{"sig1", "sig2", "sig3"},
				}, nil)
				verifyMock.Return(&VerifySignaturesResult{
					Confirmed: 1,
					Missing:   []string{"sig2"},
					Failed:    []string{"sig3"},
				}, nil)
			},
			validateResult: func(t *testing.T, result *ReconcileTransfersResult) {
				assert.Equal(t, 3, result.Checked)
				assert.Equal(t, 1, result.Confirmed)
				assert.Equal(t, []string{"sig2"}, result.MissingSignatures)
				assert.Equal(t, []string{"sig3"}, result.FailedSignatures)
			},
		},
		{
			name:  "no transfers in window",
			input: ReconcileTransfersInput{},
			mockActivities: func(listMock, verifyMock *testsuite.MockCallWrapper) {
				listMock.Return(&ListRecentTransfersResult{}, nil)
				// VerifySignatures should NOT be called
			},
			validateResult: func(t *testing.T, result *ReconcileTransfersResult) {
				assert.Equal(t, 0, result.Checked)
				assert.Equal(t, 0, result.Confirmed)
			},
		},
		{
			name:  "list transfers fails",
			input: ReconcileTransfersInput{},
			mockActivities: func(listMock, verifyMock *testsuite.MockCallWrapper) {
				listMock.Return(nil, errors.New("database error"))
			},
			expectedError: true,
			validateResult: func(t *testing.T, result *ReconcileTransfersResult) {
				// Partial result may still carry the run timestamp.
			},
		},
		{
			name:  "verify signatures fails",
			input: ReconcileTransfersInput{},
			mockActivities: func(listMock, verifyMock *testsuite.MockCallWrapper) {
				listMock.Return(&ListRecentTransfersResult{
					Signatures: []string{"sig1"},
				}, nil)
				verifyMock.Return(nil, errors.New("rpc error"))
			},
			expectedError: true,
			validateResult: func(t *testing.T, result *ReconcileTransfersResult) {},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			testSuite := &testsuite.WorkflowTestSuite{}
			env := testSuite.NewTestWorkflowEnvironment()

			activities := &Activities{}
			env.RegisterActivity(activities.ListRecentTransfers)
			env.RegisterActivity(activities.VerifySignatures)
			env.RegisterActivity(activities.RecordReconcileOutcome)

			listMock := env.OnActivity(activities.ListRecentTransfers, mock.Anything, mock.Anything)
			verifyMock := env.OnActivity(activities.VerifySignatures, mock.Anything, mock.Anything)
			env.OnActivity(activities.RecordReconcileOutcome, mock.Anything, mock.Anything).Return(nil)

			tt.mockActivities(listMock, verifyMock)

			env.ExecuteWorkflow(ReconcileTransfersWorkflow, tt.input)

			if tt.expectedError {
				assert.Error(t, env.GetWorkflowError())
				var result ReconcileTransfersResult
				env.GetWorkflowResult(&result)
				tt.validateResult(t, &result)
			} else {
				assert.NoError(t, env.GetWorkflowError())
				var result ReconcileTransfersResult
				err := env.GetWorkflowResult(&result)
				assert.NoError(t, err)
				tt.validateResult(t, &result)
			}
		})
	}
}

func TestReconcileTransfersWorkflow_RecordsRunOutcome(t *testing.T) {
	tests := []struct {
		name           string
		listResult     *ListRecentTransfersResult
		listErr        error
		expectedStatus string
	}{
		{
			name:           "successful run",
			listResult:     &ListRecentTransfersResult{Signatures: []string{"sig1"}},
			expectedStatus: "success",
		},
		{
			name:           "failed run",
			listErr:        errors.New("database error"),
			expectedStatus: "error",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			testSuite := &testsuite.WorkflowTestSuite{}
			env := testSuite.NewTestWorkflowEnvironment()

			activities := &Activities{}
			env.RegisterActivity(activities.ListRecentTransfers)
			env.RegisterActivity(activities.VerifySignatures)
			env.RegisterActivity(activities.RecordReconcileOutcome)

			env.OnActivity(activities.ListRecentTransfers, mock.Anything, mock.Anything).
				Return(tt.listResult, tt.listErr)
			if tt.listErr == nil {
				env.OnActivity(activities.VerifySignatures, mock.Anything, mock.Anything).
					Return(&VerifySignaturesResult{Confirmed: 1}, nil)
			}
			env.OnActivity(activities.RecordReconcileOutcome, mock.Anything,
				mock.MatchedBy(func(in RecordReconcileOutcomeInput) bool {
					return in.Status == tt.expectedStatus
				})).Return(nil).Once()

			env.ExecuteWorkflow(ReconcileTransfersWorkflow, ReconcileTransfersInput{})

			env.AssertExpectations(t)
		})
	}
}
