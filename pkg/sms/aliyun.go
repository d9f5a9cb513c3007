package sms

import (
	"context"
	"encoding/json"
	"fmt"

	openapi "github.com/alibabacloud-go/darabonba-openapi/v2/client"
	dypnsapi "github.com/alibabacloud-go/dypnsapi-20170525/v3/client"
	"github.com/alibabacloud-go/tea/tea"
	teautil "github.com/alibabacloud-go/tea-utils/v2/service"
)

// AliyunConfig configures the Aliyun phone-number-service sender.
type AliyunConfig struct {
	AccessKeyID     string
	AccessKeySecret string
	Endpoint        string
	SignName        string
	CodeTemplate    string
	TextTemplate    string
}

// AliyunSender sends SMS through the Aliyun dypnsapi service.
type AliyunSender struct {
	client       *dypnsapi.Client
	signName     string
	codeTemplate string
	textTemplate string
}

// NewAliyunSender builds a sender from credentials. Endpoint defaults
// to the public dypnsapi endpoint.
func NewAliyunSender(cfg AliyunConfig) (*AliyunSender, error) {
	if cfg.AccessKeyID == "" || cfg.AccessKeySecret == "" {
		return nil, fmt.Errorf("aliyun sms: missing access key")
	}
	endpoint := cfg.Endpoint
	if endpoint == "" {
		endpoint = "dypnsapi.aliyuncs.com"
	}
	client, err := dypnsapi.NewClient(&openapi.Config{
		AccessKeyId:     tea.String(cfg.AccessKeyID),
		AccessKeySecret: tea.String(cfg.AccessKeySecret),
		Endpoint:        tea.String(endpoint),
	})
	if err != nil {
		return nil, fmt.Errorf("aliyun sms: init client: %w", err)
	}
	return &AliyunSender{
		client:       client,
		signName:     cfg.SignName,
		codeTemplate: cfg.CodeTemplate,
		textTemplate: cfg.TextTemplate,
	}, nil
}

// SendCode delivers a verification code using the code template.
func (s *AliyunSender) SendCode(_ context.Context, phone, code string) error {
	return s.send(phone, s.codeTemplate, map[string]string{"code": code})
}

// Send delivers a free-form body using the text template.
func (s *AliyunSender) Send(_ context.Context, phone, body string) error {
	return s.send(phone, s.textTemplate, map[string]string{"content": body})
}

func (s *AliyunSender) send(phone, template string, params map[string]string) error {
	if template == "" {
		return fmt.Errorf("aliyun sms: no template configured")
	}
	param, err := json.Marshal(params)
	if err != nil {
		return fmt.Errorf("aliyun sms: encode template param: %w", err)
	}
	req := &dypnsapi.SendSmsVerifyCodeRequest{
		PhoneNumber:   tea.String(phone),
		SignName:      tea.String(s.signName),
		TemplateCode:  tea.String(template),
		TemplateParam: tea.String(string(param)),
	}
	resp, err := s.client.SendSmsVerifyCodeWithOptions(req, &teautil.RuntimeOptions{})
	if err != nil {
		return fmt.Errorf("aliyun sms: send: %w", err)
	}
	if resp == nil || resp.Body == nil {
		return fmt.Errorf("aliyun sms: empty response")
	}
	if code := tea.StringValue(resp.Body.Code); code != "OK" {
		return fmt.Errorf("aliyun sms: provider rejected: %s (%s)", code, tea.StringValue(resp.Body.Message))
	}
	return nil
}
