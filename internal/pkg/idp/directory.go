package idp

import (
	"context"
	"errors"

	"github.com/aws/aws-sdk-go-v2/aws"
	cip "github.com/aws/aws-sdk-go-v2/service/cognitoidentityprovider"
	"github.com/aws/aws-sdk-go-v2/service/cognitoidentityprovider/types"

	"github.com/ManuelReschke/paygate/internal/pkg/apperr"
)

// AttributeStripeCustomerID links a user to its billing-provider customer.
const AttributeStripeCustomerID = "custom:stripe_customer_id"

// UserAttribute is a single name/value pair on the user record.
type UserAttribute struct {
	Name  string `json:"Name"`
	Value string `json:"Value"`
}

// MFAOption is a legacy SMS MFA setting.
type MFAOption struct {
	DeliveryMedium string `json:"DeliveryMedium"`
	AttributeName  string `json:"AttributeName"`
}

// User is the identity provider's record for the token's principal.
type User struct {
	Username            string          `json:"Username"`
	UserAttributes      []UserAttribute `json:"UserAttributes"`
	MFAOptions          []MFAOption     `json:"MFAOptions,omitempty"`
	PreferredMfaSetting string          `json:"PreferredMfaSetting,omitempty"`
	UserMFASettingList  []string        `json:"UserMFASettingList,omitempty"`
}

// Attribute returns the named attribute's value.
func (u *User) Attribute(name string) (string, bool) {
	for _, a := range u.UserAttributes {
		if a.Name == name {
			return a.Value, true
		}
	}
	return "", false
}

// Directory reads and updates user records on behalf of the token holder.
type Directory interface {
	GetUser(ctx context.Context, accessToken string) (*User, error)
	SetAttribute(ctx context.Context, accessToken, name, value string) error
}

// CognitoAPI is the subset of the Cognito user pool client used here.
type CognitoAPI interface {
	GetUser(ctx context.Context, params *cip.GetUserInput, optFns ...func(*cip.Options)) (*cip.GetUserOutput, error)
	UpdateUserAttributes(ctx context.Context, params *cip.UpdateUserAttributesInput, optFns ...func(*cip.Options)) (*cip.UpdateUserAttributesOutput, error)
}

// CognitoDirectory implements Directory against a Cognito user pool.
type CognitoDirectory struct {
	client CognitoAPI
}

func NewCognitoDirectory(client CognitoAPI) *CognitoDirectory {
	return &CognitoDirectory{client: client}
}

func (d *CognitoDirectory) GetUser(ctx context.Context, accessToken string) (*User, error) {
	out, err := d.client.GetUser(ctx, &cip.GetUserInput{AccessToken: aws.String(accessToken)})
	if err != nil {
		return nil, classifyCognitoError("get user", err)
	}

	user := &User{
		Username:            aws.ToString(out.Username),
		PreferredMfaSetting: aws.ToString(out.PreferredMfaSetting),
		UserMFASettingList:  out.UserMFASettingList,
	}
	for _, a := range out.UserAttributes {
		user.UserAttributes = append(user.UserAttributes, UserAttribute{
			Name:  aws.ToString(a.Name),
			Value: aws.ToString(a.Value),
		})
	}
	for _, m := range out.MFAOptions {
		user.MFAOptions = append(user.MFAOptions, MFAOption{
			DeliveryMedium: string(m.DeliveryMedium),
			AttributeName:  aws.ToString(m.AttributeName),
		})
	}
	return user, nil
}

func (d *CognitoDirectory) SetAttribute(ctx context.Context, accessToken, name, value string) error {
	_, err := d.client.UpdateUserAttributes(ctx, &cip.UpdateUserAttributesInput{
		AccessToken: aws.String(accessToken),
		UserAttributes: []types.AttributeType{
			{Name: aws.String(name), Value: aws.String(value)},
		},
	})
	if err != nil {
		return classifyCognitoError("update user attributes", err)
	}
	return nil
}

func classifyCognitoError(op string, err error) error {
	var notAuthorized *types.NotAuthorizedException
	if errors.As(err, &notAuthorized) {
		return apperr.Wrap(apperr.KindInvalidToken, op, err)
	}
	return apperr.Wrap(apperr.KindProviderFailure, op, err)
}
