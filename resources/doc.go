/*
Package resources provides a client for resource groups, which hold every
other resource the workflow provisions.
*/
package resources
