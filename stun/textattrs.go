// SPDX-FileCopyrightText: 2024 The rtcware authors
// SPDX-License-Identifier: MIT

package stun

// textAttribute implements the UTF-8 text attributes: USERNAME, REALM,
// NONCE and SOFTWARE. They share a wire shape of raw text bytes, padded
// to a 4-byte boundary like any other attribute value.
type textAttribute struct {
	attr AttrType
	Text string
}

func (t textAttribute) AddTo(m *Message) error {
	m.Add(t.attr, []byte(t.Text))
	return nil
}

func (t *textAttribute) GetFrom(m *Message) error {
	raw, ok := m.Get(t.attr)
	if !ok {
		return ErrAttributeNotFound
	}
	t.Text = string(raw.Value)
	return nil
}

// Username is the USERNAME attribute.
type Username string

func (u Username) AddTo(m *Message) error { return textAttribute{attr: AttrUsername, Text: string(u)}.AddTo(m) }

// GetUsername reads a USERNAME attribute, if present.
func GetUsername(m *Message) (Username, error) {
	var t textAttribute
	t.attr = AttrUsername
	if err := t.GetFrom(m); err != nil {
		return "", err
	}
	return Username(t.Text), nil
}

// Realm is the REALM attribute.
type Realm string

func (r Realm) AddTo(m *Message) error { return textAttribute{attr: AttrRealm, Text: string(r)}.AddTo(m) }

// GetRealm reads a REALM attribute, if present.
func GetRealm(m *Message) (Realm, error) {
	var t textAttribute
	t.attr = AttrRealm
	if err := t.GetFrom(m); err != nil {
		return "", err
	}
	return Realm(t.Text), nil
}

// Nonce is the NONCE attribute.
type Nonce string

func (n Nonce) AddTo(m *Message) error { return textAttribute{attr: AttrNonce, Text: string(n)}.AddTo(m) }

// GetNonce reads a NONCE attribute, if present.
func GetNonce(m *Message) (Nonce, error) {
	var t textAttribute
	t.attr = AttrNonce
	if err := t.GetFrom(m); err != nil {
		return "", err
	}
	return Nonce(t.Text), nil
}

// Software is the SOFTWARE attribute.
type Software string

func (s Software) AddTo(m *Message) error { return textAttribute{attr: AttrSoftware, Text: string(s)}.AddTo(m) }

// GetSoftware reads a SOFTWARE attribute, if present.
func GetSoftware(m *Message) (Software, error) {
	var t textAttribute
	t.attr = AttrSoftware
	if err := t.GetFrom(m); err != nil {
		return "", err
	}
	return Software(t.Text), nil
}
