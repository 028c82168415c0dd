/*
Copyright the ledger-driver-go authors. All Rights Reserved.

Licensed under the Apache License, Version 2.0 (the "License"). You may not use this file except in compliance with
the License. A copy of the License is located at

http://www.apache.org/licenses/LICENSE-2.0

or in the "license" file accompanying this file. This file is distributed on an "AS IS" BASIS, WITHOUT WARRANTIES OR
CONDITIONS OF ANY KIND, either express or implied. See the License for the specific language governing permissions
and limitations under the License.
*/

package ledgerdriver

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/qldb"
	qldbtypes "github.com/aws/aws-sdk-go-v2/service/qldb/types"
	"github.com/aws/aws-sdk-go-v2/service/qldbsession"
	"github.com/stretchr/testify/assert"
)

// Integration tests run against a live ledger and are skipped unless
// LEDGER_INTEGRATION_TESTS is set. They need AWS credentials with QLDB
// permissions in the environment.
const integrationEnvVar = "LEDGER_INTEGRATION_TESTS"

const (
	integrationRegion      = "us-east-2"
	testTableName          = "GoIntegrationTestTable"
	indexAttribute         = "Name"
	columnName             = "Name"
	singleDocumentValue    = "SingleDocumentValue"
	multipleDocumentValue1 = "MultipleDocumentValue1"
	multipleDocumentValue2 = "MultipleDocumentValue2"
)

type testBase struct {
	qldb       *qldb.Client
	ledgerName *string
	logger     Logger
}

func skipUnlessIntegration(t *testing.T) {
	if os.Getenv(integrationEnvVar) == "" {
		t.Skipf("skipping integration test; set %s to run", integrationEnvVar)
	}
}

func createTestBase(t *testing.T, ledgerName string) *testBase {
	cfg, err := config.LoadDefaultConfig(context.TODO())
	if err != nil {
		t.Fatal(err)
	}
	client := qldb.NewFromConfig(cfg, func(options *qldb.Options) {
		options.Region = integrationRegion
	})
	return &testBase{client, &ledgerName, defaultLogger{}}
}

func (testBase *testBase) createLedger(t *testing.T) {
	testBase.logger.Log(fmt.Sprint("Creating ledger named ", *testBase.ledgerName, " ..."), LogInfo)
	_, err := testBase.qldb.CreateLedger(context.TODO(), &qldb.CreateLedgerInput{
		Name:               testBase.ledgerName,
		DeletionProtection: newBool(false),
		PermissionsMode:    qldbtypes.PermissionsModeAllowAll,
	})
	assert.NoError(t, err)
	testBase.waitForActive()
}

func (testBase *testBase) deleteLedger(t *testing.T) {
	testBase.logger.Log(fmt.Sprint("Deleting ledger ", *testBase.ledgerName), LogInfo)
	_, err := testBase.qldb.DeleteLedger(context.TODO(), &qldb.DeleteLedgerInput{Name: testBase.ledgerName})
	if err != nil {
		var rnf *qldbtypes.ResourceNotFoundException
		if errors.As(err, &rnf) {
			testBase.logger.Log("Encountered resource not found", LogInfo)
			return
		}
		var riu *qldbtypes.ResourceInUseException
		if errors.As(err, &riu) {
			if strings.Contains(riu.ErrorMessage(), "Ledger is being created") {
				testBase.waitForActive()
				_, err = testBase.qldb.DeleteLedger(context.TODO(), &qldb.DeleteLedgerInput{Name: testBase.ledgerName})
			} else if strings.Contains(riu.ErrorMessage(), "Ledger is being deleted") {
				err = nil
			}
		}
		if err != nil {
			testBase.logger.Log(err.Error(), LogInfo)
			t.Errorf("Failing test due to deletion failure")
			return
		}
	}
	testBase.waitForDeletion()
}

func (testBase *testBase) waitForActive() {
	testBase.logger.Log("Waiting for ledger to become active...", LogInfo)
	for {
		output, _ := testBase.qldb.DescribeLedger(context.TODO(), &qldb.DescribeLedgerInput{Name: testBase.ledgerName})
		if output != nil && output.State == qldbtypes.LedgerStateActive {
			testBase.logger.Log("Success. Ledger is active and ready to use.", LogInfo)
			return
		}
		testBase.logger.Log("The ledger is still creating. Please wait...", LogInfo)
		time.Sleep(5 * time.Second)
	}
}

func (testBase *testBase) waitForDeletion() {
	testBase.logger.Log("Waiting for ledger to be deleted...", LogInfo)
	for {
		_, err := testBase.qldb.DescribeLedger(context.TODO(), &qldb.DescribeLedgerInput{Name: testBase.ledgerName})
		if err != nil {
			var rnf *qldbtypes.ResourceNotFoundException
			if errors.As(err, &rnf) {
				testBase.logger.Log("The ledger is deleted", LogInfo)
				return
			}
		}
		testBase.logger.Log("The ledger is still deleting. Please wait...", LogInfo)
		time.Sleep(5 * time.Second)
	}
}

func (testBase *testBase) getDriver(t *testing.T, maxConcurrentTransactions, retryLimit int, fns ...func(*DriverOptions)) *Driver {
	cfg, err := config.LoadDefaultConfig(context.TODO())
	if err != nil {
		t.Fatal(err)
	}
	sessionClient := qldbsession.NewFromConfig(cfg, func(options *qldbsession.Options) {
		options.Region = integrationRegion
	})

	fns = append([]func(*DriverOptions){func(options *DriverOptions) {
		options.LoggerVerbosity = LogInfo
		options.MaxConcurrentTransactions = maxConcurrentTransactions
		options.RetryPolicy.MaxRetryLimit = retryLimit
	}}, fns...)
	driver, err := New(*testBase.ledgerName, sessionClient, fns...)
	if err != nil {
		t.Fatal(err)
	}
	return driver
}

func newBool(b bool) *bool { return &b }
