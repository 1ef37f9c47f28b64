package commands

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/cpu/acmekit/acme/client"
	"github.com/pkg/errors"
)

// Picker is the part of an ishell.Context used to ask the user to choose
// between several resources.
type Picker interface {
	Printer
	MultiChoice(options []string, text string) int
}

// FindOrder returns the active account's order at index. With a negative index
// the only order is returned, or the user picks one.
func FindOrder(p Picker, s *Session, index int) (*client.Order, error) {
	if index >= 0 {
		return s.Order(index)
	}
	orders := s.Orders()
	switch len(orders) {
	case 0:
		return nil, errors.New("active account has no orders")
	case 1:
		return orders[0], nil
	}

	orderList := make([]string, len(orders))
	for i, order := range orders {
		orderList[i] = fmt.Sprintf("%3d)\t%s\t%s\t%s",
			i, order.URL(), order.Status(), strings.Join(order.Names(), ","))
	}
	choice := p.MultiChoice(orderList, "Select an order")
	if choice < 0 {
		return nil, errors.New("no order selected")
	}
	return orders[choice], nil
}

func authzLabel(authz *client.Authorization) string {
	if authz.Resource().Wildcard {
		return "*." + authz.Domain()
	}
	return authz.Identifier().Value
}

// FindAuthz returns the order's authorization for identifier. With an empty
// identifier the only authorization is returned, or the user picks one.
func FindAuthz(ctx context.Context, p Picker, order *client.Order, identifier string) (*client.Authorization, error) {
	authzs, err := order.Authorizations(ctx)
	if err != nil {
		return nil, err
	}
	if len(authzs) == 0 {
		return nil, errors.Errorf("order %q has no authorizations", order.URL())
	}

	identifiersToAuthz := make(map[string]*client.Authorization, len(authzs))
	for _, authz := range authzs {
		identifiersToAuthz[authzLabel(authz)] = authz
	}
	if identifier != "" {
		if authz, ok := identifiersToAuthz[identifier]; ok {
			return authz, nil
		}
		return nil, errors.Errorf("order %q has no authorization for %q", order.URL(), identifier)
	}
	if len(authzs) == 1 {
		return authzs[0], nil
	}

	var keysList []string
	for ident := range identifiersToAuthz {
		keysList = append(keysList, ident)
	}
	sort.Strings(keysList)

	choice := p.MultiChoice(keysList, "Choose an authorization")
	if choice < 0 {
		return nil, errors.New("no authorization selected")
	}
	return identifiersToAuthz[keysList[choice]], nil
}

// FindChall returns the authorization's challenge of type challType. With an
// empty challType the user picks one.
func FindChall(p Picker, authz *client.Authorization, challType string) (client.Challenge, error) {
	challs := authz.Challenges()
	if len(challs) == 0 {
		return nil, errors.Errorf("authz %q has no challenges", authz.URL())
	}
	if challType != "" {
		if chall := authz.Challenge(challType); chall != nil {
			return chall, nil
		}
		return nil, errors.Errorf("authz %q has no %q type challenge", authz.URL(), challType)
	}

	challengeList := make([]string, len(challs))
	for i, chall := range challs {
		challengeList[i] = chall.Type()
	}
	choice := p.MultiChoice(challengeList, "Select a challenge type")
	if choice < 0 {
		return nil, errors.New("no challenge selected")
	}
	return challs[choice], nil
}
