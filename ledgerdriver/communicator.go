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

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/aws/middleware"
	"github.com/aws/aws-sdk-go-v2/service/qldbsession"
	"github.com/aws/aws-sdk-go-v2/service/qldbsession/types"
)

const version = "1.0.0"
const userAgentString = "Ledger Driver for Go v" + version

// SessionService is the request/response transport the driver runs on. It is
// satisfied by *qldbsession.Client; tests substitute their own implementation.
type SessionService interface {
	SendCommand(ctx context.Context, params *qldbsession.SendCommandInput, optFns ...func(*qldbsession.Options)) (*qldbsession.SendCommandOutput, error)
}

var _ SessionService = (*qldbsession.Client)(nil)

// ledgerService is the set of per-session commands the transaction and
// result layers are written against.
type ledgerService interface {
	abortTransaction(ctx context.Context) (*types.AbortTransactionResult, error)
	commitTransaction(ctx context.Context, txnID *string, commitDigest []byte) (*types.CommitTransactionResult, error)
	executeStatement(ctx context.Context, statement *string, parameters []types.ValueHolder, txnID *string) (*types.ExecuteStatementResult, error)
	endSession(ctx context.Context) (*types.EndSessionResult, error)
	fetchPage(ctx context.Context, pageToken *string, txnID *string) (*types.FetchPageResult, error)
	startTransaction(ctx context.Context) (*types.StartTransactionResult, error)
}

// communicator issues one wire command per call with the session token
// attached. It neither retries nor classifies errors; the retry engine
// owns both decisions, so the SDK's own retryer is disabled.
type communicator struct {
	service      SessionService
	sessionToken *string
	logger       *driverLogger
}

func startSession(ctx context.Context, ledgerName string, service SessionService, logger *driverLogger) (*communicator, error) {
	startSession := &types.StartSessionRequest{LedgerName: &ledgerName}
	sendInput := &qldbsession.SendCommandInput{StartSession: startSession}
	result, err := service.SendCommand(ctx, sendInput, func(options *qldbsession.Options) {
		options.Retryer = aws.NopRetryer{}
		options.APIOptions = append(options.APIOptions, middleware.AddUserAgentKey(userAgentString))
	})
	if err != nil {
		return nil, err
	}
	return &communicator{service, result.StartSession.SessionToken, logger}, nil
}

func (c *communicator) abortTransaction(ctx context.Context) (*types.AbortTransactionResult, error) {
	sendInput := &qldbsession.SendCommandInput{AbortTransaction: &types.AbortTransactionRequest{}}
	result, err := c.sendCommand(ctx, sendInput)
	if err != nil {
		return nil, err
	}
	return result.AbortTransaction, nil
}

func (c *communicator) commitTransaction(ctx context.Context, txnID *string, commitDigest []byte) (*types.CommitTransactionResult, error) {
	commitTransaction := &types.CommitTransactionRequest{TransactionId: txnID, CommitDigest: commitDigest}
	sendInput := &qldbsession.SendCommandInput{CommitTransaction: commitTransaction}
	result, err := c.sendCommand(ctx, sendInput)
	if err != nil {
		return nil, err
	}
	return result.CommitTransaction, nil
}

func (c *communicator) executeStatement(ctx context.Context, statement *string, parameters []types.ValueHolder, txnID *string) (*types.ExecuteStatementResult, error) {
	executeStatement := &types.ExecuteStatementRequest{
		Parameters:    parameters,
		Statement:     statement,
		TransactionId: txnID,
	}
	sendInput := &qldbsession.SendCommandInput{ExecuteStatement: executeStatement}
	result, err := c.sendCommand(ctx, sendInput)
	if err != nil {
		return nil, err
	}
	return result.ExecuteStatement, nil
}

func (c *communicator) endSession(ctx context.Context) (*types.EndSessionResult, error) {
	sendInput := &qldbsession.SendCommandInput{EndSession: &types.EndSessionRequest{}}
	result, err := c.sendCommand(ctx, sendInput)
	if err != nil {
		return nil, err
	}
	return result.EndSession, nil
}

func (c *communicator) fetchPage(ctx context.Context, pageToken *string, txnID *string) (*types.FetchPageResult, error) {
	fetchPage := &types.FetchPageRequest{NextPageToken: pageToken, TransactionId: txnID}
	sendInput := &qldbsession.SendCommandInput{FetchPage: fetchPage}
	result, err := c.sendCommand(ctx, sendInput)
	if err != nil {
		return nil, err
	}
	return result.FetchPage, nil
}

func (c *communicator) startTransaction(ctx context.Context) (*types.StartTransactionResult, error) {
	sendInput := &qldbsession.SendCommandInput{StartTransaction: &types.StartTransactionRequest{}}
	result, err := c.sendCommand(ctx, sendInput)
	if err != nil {
		return nil, err
	}
	return result.StartTransaction, nil
}

func (c *communicator) sendCommand(ctx context.Context, command *qldbsession.SendCommandInput) (*qldbsession.SendCommandOutput, error) {
	command.SessionToken = c.sessionToken
	c.logger.logf(LogDebug, "%v", command)
	return c.service.SendCommand(ctx, command, func(options *qldbsession.Options) {
		options.Retryer = aws.NopRetryer{}
		options.APIOptions = append(options.APIOptions, middleware.AddUserAgentKey(userAgentString))
	})
}
