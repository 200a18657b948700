/*
Package authorization provides a client for role-based access control: it
finds built-in role definitions and assigns them to principals. Assigning a
role the principal already holds surfaces as a typed error so callers can
treat it as granted.
*/
package authorization
