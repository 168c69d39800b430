// Package ops implements the NETCONF base protocol operations over a client session.
package ops

import (
	"context"
	"encoding/xml"

	"github.com/damianoneill/netdeploy/netconf/client"
	"github.com/damianoneill/netdeploy/netconf/common"
)

// Namespace binds the prefix ID to the namespace Path for use in xpath filters.
type Namespace struct {
	ID   string
	Path string
}

// OpSession adds the RFC 6241 operations to a client session.
//
// The get operations decode the reply into result, which is either a *string receiving the raw
// content of the data element or a pointer to a struct with xml tags.
type OpSession interface {
	client.Session

	// GetSubtree issues a get with a subtree filter. filter is an xml string or a struct with xml
	// tags; nil fetches everything.
	GetSubtree(ctx context.Context, filter interface{}, result interface{}) error

	// GetXpath issues a get with an xpath filter whose prefixes are declared by nslist.
	GetXpath(ctx context.Context, xpath string, nslist []Namespace, result interface{}) error

	// GetConfigSubtree issues a get-config against source. A nil filter fetches the whole datastore.
	GetConfigSubtree(ctx context.Context, filter interface{}, source string, result interface{}) error

	// GetConfigXpath issues a get-config against source with an xpath filter.
	GetConfigXpath(ctx context.Context, xpath string, nslist []Namespace, source string, result interface{}) error

	// EditConfig loads the configuration described by config into target. See Cfg and CfgURL.
	EditConfig(ctx context.Context, target string, config ConfigOption, options ...EditOption) error

	Lock(ctx context.Context, target string) error
	Unlock(ctx context.Context, target string) error

	// Validate asks the device to check source without applying it.
	Validate(ctx context.Context, source string) error

	// Commit copies the candidate datastore to running.
	Commit(ctx context.Context) error

	// Discard reverts the candidate datastore to running.
	Discard(ctx context.Context) error

	CloseSession(ctx context.Context) error
}

type sImpl struct {
	client.Session
}

func (s *sImpl) call(ctx context.Context, req common.Request) error {
	_, err := s.Session.Execute(ctx, req)
	return err
}

func (s *sImpl) GetSubtree(ctx context.Context, filter, result interface{}) error {
	return s.fetch(ctx, newGetRequest(filter), result)
}

func (s *sImpl) GetXpath(ctx context.Context, xpath string, nslist []Namespace, result interface{}) error {
	return s.fetch(ctx, "<get>"+xpathFilter(xpath, nslist)+"</get>", result)
}

func (s *sImpl) GetConfigSubtree(ctx context.Context, filter interface{}, source string, result interface{}) error {
	return s.fetch(ctx, newGetConfigRequest(filter, source), result)
}

func (s *sImpl) GetConfigXpath(ctx context.Context, xpath string, nslist []Namespace, source string, result interface{}) error {
	return s.fetch(ctx, newGetConfigXpathRequest(xpath, source, nslist), result)
}

func (s *sImpl) EditConfig(ctx context.Context, target string, config ConfigOption, options ...EditOption) error {
	return s.call(ctx, newEditConfigRequest(target, config, options...))
}

func (s *sImpl) Lock(ctx context.Context, target string) error {
	return s.call(ctx, &lockReq{Target: datastore(target)})
}

func (s *sImpl) Unlock(ctx context.Context, target string) error {
	return s.call(ctx, &unlockReq{Target: datastore(target)})
}

func (s *sImpl) Validate(ctx context.Context, source string) error {
	return s.call(ctx, &validateReq{Source: datastore(source)})
}

func (s *sImpl) Commit(ctx context.Context) error {
	return s.call(ctx, &commitReq{})
}

func (s *sImpl) Discard(ctx context.Context) error {
	return s.call(ctx, &discardReq{})
}

func (s *sImpl) CloseSession(ctx context.Context) error {
	return s.call(ctx, &closeSessionReq{})
}

func (s *sImpl) fetch(ctx context.Context, req common.Request, result interface{}) error {
	reply, err := s.Session.Execute(ctx, req)
	if err != nil {
		return err
	}

	if raw, ok := result.(*string); ok {
		var data Data
		if err := xml.Unmarshal([]byte(reply.Data), &data); err != nil {
			return err
		}
		*raw = data.Content
		return nil
	}
	return xml.Unmarshal([]byte(reply.Data), &Data{Body: result})
}
