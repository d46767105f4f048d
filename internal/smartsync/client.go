package smartsync

import (
	"bytes"
	"context"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"
)

const (
	approvedManifestMethodNameConstant   = "GetApprovedManifest"
	requestContentTypeConstant           = "text/xml"
	defaultRequestTimeoutConstant        = 30 * time.Second
	serviceUnreachableMessageConstant    = "manifest service unreachable"
	malformedResponseMessageConstant     = "manifest service returned a malformed response"
	serverRejectionTemplateConstant      = "manifest service rejected the request: %s"
	unexpectedStatusTemplateConstant     = "manifest service returned status %d"
	connectionFailureTemplateConstant    = "%w: %v"
	buildRequestErrorTemplateConstant    = "unable to build manifest service request: %w"
	encodeRequestErrorTemplateConstant   = "unable to encode manifest service request: %w"
	approvedManifestRequestedMsgConstant = "requesting approved manifest"
	serverURLFieldConstant               = "server_url"
	branchFieldConstant                  = "branch"
	targetFieldConstant                  = "target"
	booleanTrueValueConstant             = "1"
)

// ErrServiceUnreachable indicates the manifest service could not be contacted.
var ErrServiceUnreachable = errors.New(serviceUnreachableMessageConstant)

// ErrMalformedResponse indicates the service reply did not carry the expected pair.
var ErrMalformedResponse = errors.New(malformedResponseMessageConstant)

// ServerRejectionError carries the failure message an explicit rejection returned.
type ServerRejectionError struct {
	Message string
}

// Error describes the rejection.
func (rejection ServerRejectionError) Error() string {
	return fmt.Sprintf(serverRejectionTemplateConstant, rejection.Message)
}

type methodCallParameter struct {
	StringValue string `xml:"value>string"`
}

type methodCallDocument struct {
	XMLName    xml.Name              `xml:"methodCall"`
	MethodName string                `xml:"methodName"`
	Parameters []methodCallParameter `xml:"params>param"`
}

type methodResponseValue struct {
	BooleanValue string `xml:"boolean"`
	StringValue  string `xml:"string"`
}

type methodResponseDocument struct {
	XMLName xml.Name              `xml:"methodResponse"`
	Values  []methodResponseValue `xml:"params>param>value>array>data>value"`
}

// Client talks to the manifest approval service over XML-RPC.
type Client struct {
	logger     *zap.Logger
	httpClient *http.Client
}

// NewClient constructs a client; a nil http.Client falls back to a timeout-bounded default.
func NewClient(logger *zap.Logger, httpClient *http.Client) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: defaultRequestTimeoutConstant}
	}
	return &Client{logger: logger, httpClient: httpClient}
}

// FetchApprovedManifest requests the approved manifest snapshot for a branch,
// optionally scoped to a build target, and returns the manifest text.
func (client *Client) FetchApprovedManifest(executionContext context.Context, serverURL string, branch string, target string) (string, error) {
	client.logger.Debug(approvedManifestRequestedMsgConstant,
		zap.String(serverURLFieldConstant, serverURL),
		zap.String(branchFieldConstant, branch),
		zap.String(targetFieldConstant, target),
	)

	requestParameters := []methodCallParameter{{StringValue: branch}}
	if len(target) > 0 {
		requestParameters = append(requestParameters, methodCallParameter{StringValue: target})
	}

	requestDocument := methodCallDocument{
		MethodName: approvedManifestMethodNameConstant,
		Parameters: requestParameters,
	}
	requestBody, encodeError := xml.Marshal(requestDocument)
	if encodeError != nil {
		return "", fmt.Errorf(encodeRequestErrorTemplateConstant, encodeError)
	}

	httpRequest, requestError := http.NewRequestWithContext(executionContext, http.MethodPost, serverURL, bytes.NewReader(requestBody))
	if requestError != nil {
		return "", fmt.Errorf(buildRequestErrorTemplateConstant, requestError)
	}
	httpRequest.Header.Set("Content-Type", requestContentTypeConstant)

	httpResponse, transportError := client.httpClient.Do(httpRequest)
	if transportError != nil {
		return "", fmt.Errorf(connectionFailureTemplateConstant, ErrServiceUnreachable, transportError)
	}
	defer func() { _ = httpResponse.Body.Close() }()

	if httpResponse.StatusCode != http.StatusOK {
		return "", fmt.Errorf(unexpectedStatusTemplateConstant, httpResponse.StatusCode)
	}

	responseBody, readError := io.ReadAll(httpResponse.Body)
	if readError != nil {
		return "", fmt.Errorf(connectionFailureTemplateConstant, ErrServiceUnreachable, readError)
	}

	responseDocument := methodResponseDocument{}
	if decodeError := xml.Unmarshal(responseBody, &responseDocument); decodeError != nil {
		return "", fmt.Errorf(connectionFailureTemplateConstant, ErrMalformedResponse, decodeError)
	}
	if len(responseDocument.Values) < 2 {
		return "", ErrMalformedResponse
	}

	if responseDocument.Values[0].BooleanValue != booleanTrueValueConstant {
		return "", ServerRejectionError{Message: responseDocument.Values[1].StringValue}
	}
	return responseDocument.Values[1].StringValue, nil
}
