/*
Package storage provides clients for the storage account APIs: the management
plane that creates accounts, regenerates keys, and mints account SAS tokens,
and the blob data plane used to exercise a SAS token against real storage.
*/
package storage
