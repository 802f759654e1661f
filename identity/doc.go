// Package identity implements the client for the remote identity endpoint
// (GET {base}/api/user), the only network collaborator of the session
// manager.
//
// The endpoint returns the canonical profile for the bearer token's
// holder. Several response fields have legacy aliases (phonenumber,
// zipcode, company_name) which the client folds into one canonical
// [Profile]. A 401 or 419 status maps to [ErrUnauthenticated]; any other
// non-2xx status is a generic error the caller is expected to absorb.
package identity
